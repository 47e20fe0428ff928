package models

import (
	"fmt"
	"strings"

	botModels "github.com/go-telegram/bot/models"
)

// 屏蔽类型名称（运营配置中使用）
const (
	BlockTypeText     = "text"
	BlockTypePhoto    = "photo"
	BlockTypeVideo    = "video"
	BlockTypeDocument = "document"
	BlockTypeFile     = "file" // document 的别名
	BlockTypeAudio    = "audio"
	BlockTypeVoice    = "voice"
	BlockTypeSticker  = "sticker"
	BlockTypeContact  = "contact"
	BlockTypeLocation = "location"
)

// Inbound 来源频道的一条入站消息（与 Telegram 结构解耦）
type Inbound struct {
	ChatID       int64
	ChatUsername string
	MessageID    int64

	Text    string
	Caption string

	PhotoFileID    string // 最大尺寸的图片
	VideoFileID    string
	DocumentFileID string
	AudioFileID    string
	VoiceFileID    string
	StickerFileID  string

	HasContact  bool
	HasLocation bool
}

// InboundFromMessage 从 Telegram 消息构造入站消息
func InboundFromMessage(msg *botModels.Message) *Inbound {
	if msg == nil {
		return nil
	}

	in := &Inbound{
		ChatID:       msg.Chat.ID,
		ChatUsername: msg.Chat.Username,
		MessageID:    int64(msg.ID),
		Text:         msg.Text,
		Caption:      msg.Caption,
		HasContact:   msg.Contact != nil,
		HasLocation:  msg.Location != nil,
	}

	if len(msg.Photo) > 0 {
		in.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
	}
	if msg.Video != nil {
		in.VideoFileID = msg.Video.FileID
	}
	if msg.Document != nil {
		in.DocumentFileID = msg.Document.FileID
	}
	if msg.Audio != nil {
		in.AudioFileID = msg.Audio.FileID
	}
	if msg.Voice != nil {
		in.VoiceFileID = msg.Voice.FileID
	}
	if msg.Sticker != nil {
		in.StickerFileID = msg.Sticker.FileID
	}

	return in
}

// Body 文本内容：正文优先，其次说明文字
func (in *Inbound) Body() string {
	if in.Text != "" {
		return in.Text
	}
	return in.Caption
}

// MediaRef 返回指定类型的媒体 file_id
func (in *Inbound) MediaRef(kind ContentKind) string {
	switch kind {
	case KindPhoto:
		return in.PhotoFileID
	case KindVideo:
		return in.VideoFileID
	case KindDocument:
		return in.DocumentFileID
	case KindAudio:
		return in.AudioFileID
	case KindVoice:
		return in.VoiceFileID
	case KindSticker:
		return in.StickerFileID
	default:
		return ""
	}
}

// HasType 消息是否携带指定屏蔽类型的内容
func (in *Inbound) HasType(blockType string) bool {
	switch strings.ToLower(strings.TrimSpace(blockType)) {
	case BlockTypeText:
		return in.Text != ""
	case BlockTypePhoto:
		return in.PhotoFileID != ""
	case BlockTypeVideo:
		return in.VideoFileID != ""
	case BlockTypeDocument, BlockTypeFile:
		return in.DocumentFileID != ""
	case BlockTypeAudio:
		return in.AudioFileID != ""
	case BlockTypeVoice:
		return in.VoiceFileID != ""
	case BlockTypeSticker:
		return in.StickerFileID != ""
	case BlockTypeContact:
		return in.HasContact
	case BlockTypeLocation:
		return in.HasLocation
	default:
		return false
	}
}

// SourceKey 来源去重键
func (in *Inbound) SourceKey() string {
	return fmt.Sprintf("%d:%d", in.ChatID, in.MessageID)
}

// IsKnownBlockType 是否为可识别的屏蔽类型名称
func IsKnownBlockType(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BlockTypeText, BlockTypePhoto, BlockTypeVideo, BlockTypeDocument, BlockTypeFile,
		BlockTypeAudio, BlockTypeVoice, BlockTypeSticker, BlockTypeContact, BlockTypeLocation:
		return true
	default:
		return false
	}
}
