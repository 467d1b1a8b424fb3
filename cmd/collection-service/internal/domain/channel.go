package domain

// Channel 渠道 (租户分区)
type Channel struct {
	ID                  string
	Code                string
	Token               string
	DefaultLanguageCode string
	IsDefault           bool
}

// RequestContext 请求上下文：当前渠道与语言
type RequestContext struct {
	Channel      *Channel
	LanguageCode string
}

// ChannelID 当前渠道 ID
func (rc RequestContext) ChannelID() string {
	if rc.Channel == nil {
		return ""
	}
	return rc.Channel.ID
}

// ChannelToken 当前渠道 token
func (rc RequestContext) ChannelToken() string {
	if rc.Channel == nil {
		return ""
	}
	return rc.Channel.Token
}

// Language 请求语言，未指定时回退到渠道默认语言
func (rc RequestContext) Language() string {
	if rc.LanguageCode != "" {
		return rc.LanguageCode
	}
	if rc.Channel != nil {
		return rc.Channel.DefaultLanguageCode
	}
	return ""
}
