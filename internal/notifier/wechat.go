package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

const wechatMaxRetries = 3

// Error codes WeCom documents as permanent for a webhook; retrying
// them only burns quota.
var wechatPermanentErrcodes = map[int]bool{
	93000: true, // invalid webhook url
	93004: true, // bot removed from group
}

// Stats counts webhook deliveries.
type Stats struct {
	Total      int
	Succeeded  int
	Failed     int
	LastSentAt time.Time
}

// WeChat pushes outcome messages through a WeCom group-bot webhook.
// Safe for concurrent use.
type WeChat struct {
	cfg    config.WeChatConfig
	room   string
	client *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// NewWeChat builds the webhook sink.
func NewWeChat(cfg config.WeChatConfig, room string, logger *zap.Logger) *WeChat {
	return &WeChat{
		cfg:    cfg,
		room:   room,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger,
	}
}

type wechatText struct {
	Content       string   `json:"content"`
	MentionedList []string `json:"mentioned_list,omitempty"`
}

type wechatMessage struct {
	MsgType string     `json:"msgtype"`
	Text    wechatText `json:"text"`
}

type wechatResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify sends one account's terminal outcome, honoring the
// success/failure toggles.
func (w *WeChat) Notify(ctx context.Context, outcome models.Outcome) error {
	if outcome.Succeeded() && !w.cfg.OnSuccess {
		return nil
	}
	if !outcome.Succeeded() && !w.cfg.OnFailure {
		return nil
	}
	return w.SendText(ctx, w.outcomeMessage(outcome))
}

// NotifyReport sends the whole-run summary.
func (w *WeChat) NotifyReport(ctx context.Context, report *models.RunReport) error {
	return w.SendText(ctx, w.reportMessage(report))
}

// SendText delivers a text message, retrying transient failures up to
// the ceiling. Permanent WeCom error codes abort immediately.
func (w *WeChat) SendText(ctx context.Context, content string) error {
	msg := wechatMessage{MsgType: "text", Text: wechatText{Content: content}}
	if w.cfg.MentionAll {
		msg.Text.MentionedList = []string{"@all"}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode wechat message: %w", err)
	}

	w.recordAttempt()
	var lastErr error
	for attempt := 1; attempt <= wechatMaxRetries; attempt++ {
		lastErr = w.post(ctx, payload)
		if lastErr == nil {
			w.recordResult(true)
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			break
		}
		if attempt < wechatMaxRetries {
			select {
			case <-ctx.Done():
				w.recordResult(false)
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	w.recordResult(false)
	return fmt.Errorf("wechat delivery failed: %w", lastErr)
}

type permanentError struct {
	code int
	msg  string
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("wechat errcode %d: %s", e.code, e.msg)
}

func (w *WeChat) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	var result wechatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode webhook response: %w", err)
	}
	if result.ErrCode == 0 {
		return nil
	}
	if wechatPermanentErrcodes[result.ErrCode] {
		return &permanentError{code: result.ErrCode, msg: result.ErrMsg}
	}
	return fmt.Errorf("wechat errcode %d: %s", result.ErrCode, result.ErrMsg)
}

func (w *WeChat) recordAttempt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Total++
	w.stats.LastSentAt = time.Now()
}

func (w *WeChat) recordResult(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ok {
		w.stats.Succeeded++
	} else {
		w.stats.Failed++
	}
}

// Stats returns a copy of the delivery counters.
func (w *WeChat) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *WeChat) outcomeMessage(outcome models.Outcome) string {
	now := time.Now().Format("15:04:05")
	if outcome.Succeeded() {
		return fmt.Sprintf(`🎉 【座位预约成功】🎉

📍 座位信息: %d号座位
📅 预约日期: %s
🏢 房间: %s
👤 账户: %s
⏰ 预约时间: %s
🎯 尝试次数: %d次

💡 预约系统自动化成功！请及时查看！`,
			outcome.Seat, outcome.Date, w.room, outcome.Account, now, outcome.Attempts)
	}

	return fmt.Sprintf(`❌ 【座位预约失败】❌

📅 目标日期: %s
🏢 房间: %s
👤 账户: %s
⏰ 执行时间: %s
🎯 尝试次数: %d次
📋 尝试座位: %v
📋 失败原因: %s

💡 建议检查账户状态和座位可用性！`,
		outcome.Date, w.room, outcome.Account, now, outcome.Attempts,
		outcome.SeatsTried, outcome.Reason)
}

func (w *WeChat) reportMessage(report *models.RunReport) string {
	var details []string
	for _, o := range report.Outcomes {
		if o.Succeeded() {
			details = append(details, fmt.Sprintf("✅ %s: 预约成功 - 座位%d", o.Account, o.Seat))
		} else {
			details = append(details, fmt.Sprintf("❌ %s: 预约失败 - %s", o.Account, o.Summary()))
		}
	}

	return fmt.Sprintf(`📊 【预约执行报告】📊

⏰ 执行时间: %s
⏱️ 总耗时: %.1f秒
✅ 成功: %d 个账户
❌ 失败: %d 个账户

📋 详细结果:
%s`,
		time.Now().Format("15:04:05"), report.Elapsed.Seconds(),
		report.Successful(), report.Failed(), strings.Join(details, "\n"))
}
