package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

// Email delivers outcome summaries over SMTP.
type Email struct {
	cfg  config.EmailConfig
	room string
	auth smtp.Auth

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail builds the SMTP sink.
func NewEmail(cfg config.EmailConfig, room string) *Email {
	return &Email{
		cfg:  cfg,
		room: room,
		auth: smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host),
		send: smtp.SendMail,
	}
}

// Notify sends one account's terminal outcome.
func (e *Email) Notify(ctx context.Context, outcome models.Outcome) error {
	subject := e.cfg.Subject
	if subject == "" {
		if outcome.Succeeded() {
			subject = fmt.Sprintf("✅ 座位预约成功 - %s", outcome.Account)
		} else {
			subject = fmt.Sprintf("❌ 座位预约失败 - %s", outcome.Account)
		}
	}
	return e.deliver(subject, e.outcomeBody(outcome))
}

// NotifyReport sends the whole-run summary.
func (e *Email) NotifyReport(ctx context.Context, report *models.RunReport) error {
	subject := fmt.Sprintf("📊 预约执行报告: %d 成功 / %d 失败", report.Successful(), report.Failed())
	return e.deliver(subject, e.reportBody(report))
}

func (e *Email) deliver(subject, body string) error {
	message := e.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTP.Host, e.cfg.SMTP.Port)
	if err := e.send(addr, e.auth, e.cfg.From, e.cfg.To, []byte(message)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (e *Email) outcomeBody(outcome models.Outcome) string {
	var sb strings.Builder
	if outcome.Succeeded() {
		sb.WriteString("座位预约成功！\n\n")
	} else {
		sb.WriteString("座位预约失败。\n\n")
	}
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	sb.WriteString(fmt.Sprintf("👤 账户: %s\n", outcome.Account))
	sb.WriteString(fmt.Sprintf("🏢 房间: %s\n", e.room))
	sb.WriteString(fmt.Sprintf("📅 日期: %s\n", outcome.Date))
	if outcome.Succeeded() {
		sb.WriteString(fmt.Sprintf("📍 座位: %d号\n", outcome.Seat))
	} else {
		sb.WriteString(fmt.Sprintf("📋 尝试座位: %v\n", outcome.SeatsTried))
		sb.WriteString(fmt.Sprintf("📋 失败原因: %s\n", outcome.Reason))
	}
	sb.WriteString(fmt.Sprintf("🎯 验证码尝试: %d次\n", outcome.Attempts))
	sb.WriteString(fmt.Sprintf("⏱️ 耗时: %.1f秒\n", outcome.Elapsed.Seconds()))
	sb.WriteString("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	sb.WriteString(fmt.Sprintf("🕐 发送时间: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	return sb.String()
}

func (e *Email) reportBody(report *models.RunReport) string {
	var sb strings.Builder
	sb.WriteString("预约执行报告\n\n")
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	for _, o := range report.Outcomes {
		if o.Succeeded() {
			sb.WriteString(fmt.Sprintf("  ✅ %s: 座位%d\n", o.Account, o.Seat))
		} else {
			sb.WriteString(fmt.Sprintf("  ❌ %s: %s\n", o.Account, o.Summary()))
		}
	}
	sb.WriteString("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	sb.WriteString(fmt.Sprintf("⏱️ 总耗时: %.1f秒\n", report.Elapsed.Seconds()))
	sb.WriteString(fmt.Sprintf("🕐 发送时间: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	return sb.String()
}

func (e *Email) buildMessage(subject, body string) string {
	headers := []string{
		"From: " + e.cfg.From,
		"To: " + strings.Join(e.cfg.To, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}

	var message strings.Builder
	for _, h := range headers {
		message.WriteString(h)
		message.WriteString("\r\n")
	}
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}
