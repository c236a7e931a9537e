package ws

// ERROR 信封对外的文案。协议的错误分类在帧处理边界收敛成这些稳定字符串，
// 客户端按文案展示，不应随意改动。
const (
	errProcessFailed = "Failed to process message"
	errUnknownType   = "Unknown message type"
	errNotAuth       = "Not authenticated"
	errBadUsername   = "Invalid username"
	errBadMessage    = "Invalid message data"
	errChannelGone   = "Channel not found"
	errUserGone      = "User not found"
	errJoinFailed    = "Failed to join"
	errSwitchFailed  = "Failed to switch channel"
	errSendFailed    = "Failed to send message"
)
