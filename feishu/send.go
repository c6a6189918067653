package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/rs/zerolog/log"
)

// maxFileSize is the vendor's upload limit for file attachments.
const maxFileSize = 30 * 1024 * 1024

const emptyPayloadText = "[empty message]"

// OutboundMessage is a rich message to be composed and sent. Media entries
// are local file paths; images are embedded in the primary payload, other
// files are sent as follow-up file messages.
type OutboundMessage struct {
	ChatID string
	Text   string
	Media  []string
	Title  string
}

// postElement is one block of a Feishu post payload.
type postElement struct {
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	ImageKey string `json:"image_key,omitempty"`
}

// Send composes and delivers msg: uploads media, sends the primary rich
// payload, then one file message per uploaded file. Per-item upload
// failures are logged, dropped from the payload, and reported in the
// returned outcome string; they never abort the send. The error is non-nil
// only when a vendor send call itself fails.
func (c *Client) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	receiveIDType := receiveIDTypeFor(msg.ChatID)

	var (
		imageKeys []string
		fileKeys  []string
		fileNames []string
		failures  []string
	)
	for _, path := range msg.Media {
		if isImagePath(path) {
			key, err := c.uploadImage(ctx, path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("image upload failed, dropped")
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				continue
			}
			imageKeys = append(imageKeys, key)
		} else {
			key, err := c.uploadFile(ctx, path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("file upload failed, dropped")
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				continue
			}
			fileKeys = append(fileKeys, key)
			fileNames = append(fileNames, filepath.Base(path))
		}
	}

	var outcome []string
	var sendErr error

	// The primary payload is skipped when only files survived; otherwise
	// it always carries at least one block.
	if msg.Text != "" || len(imageKeys) > 0 || len(fileKeys) == 0 {
		content := buildPostContent(msg.Text, imageKeys, msg.Title)
		if err := c.sendPost(ctx, msg.ChatID, receiveIDType, content); err != nil {
			log.Error().Err(err).Str("chat_id", msg.ChatID).Msg("failed to send rich message")
			outcome = append(outcome, fmt.Sprintf("rich message failed: %v", err))
			sendErr = err
		} else {
			outcome = append(outcome, fmt.Sprintf("sent rich message (%d images)", len(imageKeys)))
		}
	}

	for i, key := range fileKeys {
		if err := c.sendFileMessage(ctx, msg.ChatID, receiveIDType, key); err != nil {
			log.Error().Err(err).Str("file", fileNames[i]).Msg("failed to send file message")
			outcome = append(outcome, fmt.Sprintf("file %s failed: %v", fileNames[i], err))
			sendErr = err
			continue
		}
		outcome = append(outcome, fmt.Sprintf("sent file %s", fileNames[i]))
	}

	if len(failures) > 0 {
		outcome = append(outcome, "upload failures: "+strings.Join(failures, "; "))
	}
	return strings.Join(outcome, "; "), sendErr
}

// receiveIDTypeFor maps a target identifier to the vendor addressing mode:
// group chat ids carry the oc_ prefix, everything else is a user open_id.
func receiveIDTypeFor(chatID string) string {
	if strings.HasPrefix(chatID, "oc_") {
		return larkim.ReceiveIdTypeChatId
	}
	return larkim.ReceiveIdTypeOpenId
}

func isImagePath(path string) bool {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return strings.HasPrefix(mimeType, "image/")
}

// buildPostContent assembles the ordered block list of a post payload: one
// markdown block when text is non-empty, then one image block per uploaded
// image. An all-empty payload gets a single placeholder block.
func buildPostContent(text string, imageKeys []string, title string) map[string]any {
	var rows [][]postElement
	if text != "" {
		rows = append(rows, []postElement{{Tag: "md", Text: text}})
	}
	for _, key := range imageKeys {
		rows = append(rows, []postElement{{Tag: "img", ImageKey: key}})
	}
	if len(rows) == 0 {
		rows = [][]postElement{{{Tag: "md", Text: emptyPayloadText}}}
	}

	return map[string]any{
		"zh_cn": map[string]any{
			"title":   title,
			"content": rows,
		},
	}
}

func (c *Client) sendPost(ctx context.Context, chatID, receiveIDType string, content map[string]any) error {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal post content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypePost).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) sendFileMessage(ctx context.Context, chatID, receiveIDType, fileKey string) error {
	contentJSON, err := json.Marshal(map[string]string{"file_key": fileKey})
	if err != nil {
		return fmt.Errorf("marshal file content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType("file").
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send file message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send file message: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// uploadImage uploads an image and returns its image_key.
func (c *Client) uploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType("message").
			Image(f).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("upload image: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("upload image: missing image_key")
	}
	return *resp.Data.ImageKey, nil
}

// validateFileForUpload rejects missing, empty and oversized files before
// any bytes are sent.
func validateFileForUpload(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("file not found: %w", err)
	}
	if info.Size() <= 0 {
		return 0, fmt.Errorf("file is empty: %s", path)
	}
	if info.Size() > maxFileSize {
		return 0, fmt.Errorf("file too large (>30MB): %s", path)
	}
	return info.Size(), nil
}

// uploadFile uploads a non-image attachment through the multipart file
// endpoint and returns its file_key.
func (c *Client) uploadFile(ctx context.Context, path string) (string, error) {
	if _, err := validateFileForUpload(path); err != nil {
		return "", err
	}

	token, err := c.tokens.Get(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("file_type", fileTypeForPath(path)); err != nil {
		return "", fmt.Errorf("write file_type field: %w", err)
	}
	if err := w.WriteField("file_name", filepath.Base(path)); err != nil {
		return "", fmt.Errorf("write file_name field: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/im/v1/files", &body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			FileKey string `json:"file_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("upload file: code=%d msg=%s", result.Code, result.Msg)
	}
	if result.Data.FileKey == "" {
		return "", fmt.Errorf("upload file: missing file_key")
	}
	return result.Data.FileKey, nil
}

// fileTypeForPath maps a file extension to the vendor's file_type values.
func fileTypeForPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "opus", "mp4", "pdf", "doc", "xls", "ppt":
		return ext
	case "docx":
		return "doc"
	case "xlsx":
		return "xls"
	case "pptx":
		return "ppt"
	default:
		return "stream"
	}
}
