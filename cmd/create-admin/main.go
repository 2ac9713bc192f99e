package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"tempinbox/backend/internal/auth"
	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
	storagesql "tempinbox/backend/internal/storage/sql"
)

// 在数据库里创建一个管理员账号，部署后的一次性引导工具。
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: create-admin <email> <password> [username]")
		os.Exit(1)
	}

	email := os.Args[1]
	password := os.Args[2]
	username := "admin"
	if len(os.Args) >= 4 {
		username = os.Args[3]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("A database is required: set TEMPINBOX_DATABASE_TYPE and TEMPINBOX_DATABASE_DSN")
		os.Exit(1)
	}

	store, err := storagesql.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	validator := domain.NewEmailValidator()
	if err := validator.ValidateEmail(email); err != nil {
		fmt.Printf("Invalid email: %v\n", err)
		os.Exit(1)
	}
	if err := domain.ValidatePassword(password); err != nil {
		fmt.Printf("Invalid password: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateUser(user); err != nil {
		if err == storage.ErrEmailExists {
			fmt.Println("A user with this email already exists")
		} else {
			fmt.Printf("Failed to create admin user: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Admin user created: %s (%s)\n", user.Email, user.ID)
}
