package models

// ContentKind 队列中可发布的内容类型（封闭集合）
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindPhoto    ContentKind = "photo"
	KindVideo    ContentKind = "video"
	KindDocument ContentKind = "document"
	KindAudio    ContentKind = "audio"
	KindVoice    ContentKind = "voice"
	KindSticker  ContentKind = "sticker"
)

// classifyOrder 分类优先级：photo > video > document > audio > voice > sticker > text
var classifyOrder = []ContentKind{
	KindPhoto,
	KindVideo,
	KindDocument,
	KindAudio,
	KindVoice,
	KindSticker,
	KindText,
}

// Kinds 返回全部支持的内容类型（按分类优先级）
func Kinds() []ContentKind {
	return append([]ContentKind(nil), classifyOrder...)
}

// Valid 是否为支持的内容类型
func (k ContentKind) Valid() bool {
	for _, kind := range classifyOrder {
		if k == kind {
			return true
		}
	}
	return false
}

// Telegram 文本与说明的长度上限（按字符）
const (
	MaxTextLength    = 4096
	MaxCaptionLength = 1024
)

// TextLimit 投递时正文或说明的长度上限
func (k ContentKind) TextLimit() int {
	if k == KindText {
		return MaxTextLength
	}
	return MaxCaptionLength
}

// HasCaption 投递时是否附带说明文字（贴纸不支持）
func (k ContentKind) HasCaption() bool {
	return k != KindSticker
}

// Content 分类后的发布内容
type Content struct {
	Kind     ContentKind
	MediaRef string // 媒体 file_id，文本为空
	Caption  string // 文本正文或媒体说明
}

// Classify 按固定优先级把入站消息归为唯一的内容类型
// 联系人、位置等不在封闭集合内的消息返回 false
func Classify(in *Inbound) (Content, bool) {
	if in == nil {
		return Content{}, false
	}

	for _, kind := range classifyOrder {
		if kind == KindText {
			if in.Text != "" {
				return Content{Kind: KindText, Caption: in.Text}, true
			}
			continue
		}
		if ref := in.MediaRef(kind); ref != "" {
			return Content{Kind: kind, MediaRef: ref, Caption: in.Caption}, true
		}
	}

	return Content{}, false
}
