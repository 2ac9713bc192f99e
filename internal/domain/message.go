package domain

import "time"

// Message 表示临时邮箱收到的一封邮件。
type Message struct {
	ID         string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID  string   `json:"mailboxId" gorm:"type:varchar(36);index:idx_mailbox_received;not null"`
	From       string   `json:"from" gorm:"type:varchar(255)"`
	To         string   `json:"to" gorm:"type:varchar(255)"`
	Subject    string   `json:"subject" gorm:"type:varchar(500)"`
	TextBody   string   `json:"textBody" gorm:"type:text"`
	HTMLBody   string   `json:"htmlBody" gorm:"type:text"` // 已消毒的 HTML
	MessageID  string   `json:"messageId" gorm:"type:varchar(255)"`
	InReplyTo  string   `json:"inReplyTo" gorm:"type:varchar(255)"`
	References string   `json:"references" gorm:"type:text"`
	PlanTier   PlanTier `json:"planTierAtReceipt" gorm:"type:varchar(20)"` // 收信时刻的套餐快照
	SpamScore  float64  `json:"spamScore" gorm:"default:0"`                // 预留字段，当前不计算
	IsRead     bool     `json:"isRead" gorm:"default:false;index"`

	ReceivedAt time.Time `json:"receivedAt" gorm:"index:idx_mailbox_received"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"-"`
}

// Attachment 表示邮件附件的元数据。
//
// 附件内容保存在外部对象存储中，这里只记录访问 URL 与删除句柄。
type Attachment struct {
	ID           string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID    string `json:"messageId" gorm:"type:varchar(36);index;not null"`
	MailboxID    string `json:"-" gorm:"type:varchar(36);index;not null"`
	Filename     string `json:"filename" gorm:"type:varchar(255)"`
	ContentType  string `json:"contentType" gorm:"type:varchar(100)"`
	Size         int64  `json:"size"`
	URL          string `json:"url" gorm:"type:varchar(512)"`
	DeleteHandle string `json:"-" gorm:"type:varchar(512)"`

	CreatedAt time.Time `json:"createdAt"`
}

// InboundAttachment 表示 webhook 投递进来、尚未上传的附件。
type InboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}

// InboundEmail 表示规范化之后的入站邮件载荷。
type InboundEmail struct {
	To          string              `json:"to"`
	From        string              `json:"from"`
	Subject     string              `json:"subject"`
	TextBody    string              `json:"textBody"`
	HTMLBody    string              `json:"htmlBody"`
	MessageID   string              `json:"messageId"`
	InReplyTo   string              `json:"inReplyTo"`
	References  string              `json:"references"`
	Attachments []InboundAttachment `json:"attachments"`
}
