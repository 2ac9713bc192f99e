package httptransport

import (
	"tempinbox/backend/internal/auth"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/payment"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 邮箱相关
	storage.ErrMailboxNotFound:          "邮箱不存在",
	storage.ErrAddressTaken:             "邮箱地址已被占用",
	service.ErrMailboxExpired:           "邮箱已过期",
	service.ErrForbidden:                "无权访问该资源",
	service.ErrDomainNotAllowed:         "域名不可用",
	service.ErrCustomEmailNotAllowed:    "当前套餐不支持自定义邮箱",
	service.ErrCustomEmailQuotaExceeded: "本月自定义邮箱额度已用尽",

	// 邮件相关
	storage.ErrMessageNotFound: "邮件不存在",

	// 地址格式相关
	domain.ErrInvalidEmail:     "邮箱地址格式无效",
	domain.ErrInvalidLocalPart: "邮箱前缀格式无效",
	domain.ErrInvalidDomain:    "域名格式无效",
	domain.ErrLocalPartTooLong: "邮箱前缀过长",
	domain.ErrEmailTooLong:     "邮箱地址过长",

	// 认证相关
	auth.ErrInvalidCredentials:  "邮箱或密码错误",
	auth.ErrUserInactive:        "账号已被禁用",
	auth.ErrTokenRevoked:        "登录已失效，请重新登录",
	storage.ErrEmailExists:      "该邮箱已注册",
	storage.ErrUserNotFound:     "用户不存在",
	domain.ErrPasswordTooShort:  "密码至少需要 8 个字符",
	domain.ErrPasswordTooLong:   "密码过长",

	// 订阅与计费相关
	service.ErrInvalidTier:        "未知的套餐",
	service.ErrPlanNotPurchasable: "该套餐无需购买",
	service.ErrGatewayNotFound:    "不支持的支付方式",
	service.ErrCheckoutNotPaid:    "支付尚未完成",
	payment.ErrUnknownPlan:        "该套餐未配置价格",
	payment.ErrSessionNotFound:    "支付会话不存在",

	// 自有域名相关
	storage.ErrDomainNotFound:            "域名不存在",
	storage.ErrDomainExists:              "域名已被绑定",
	service.ErrCustomDomainNotAllowed:    "当前套餐不支持绑定自有域名",
	service.ErrCustomDomainQuotaExceeded: "本月域名绑定额度已用尽",
	service.ErrDNSProviderDisabled:       "自有域名功能未开启",
}

// GetErrorMessage 获取错误的中文消息。
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgAuthRequired   = "需要登录认证"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)
