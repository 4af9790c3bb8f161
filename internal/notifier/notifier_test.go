package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/likewindccc/seatgrab/internal/config"
	"github.com/likewindccc/seatgrab/internal/models"
)

func wechatConfig(url string) config.WeChatConfig {
	return config.WeChatConfig{
		Enabled:    true,
		WebhookURL: url,
		TimeoutSec: 5,
		OnSuccess:  true,
		OnFailure:  true,
	}
}

var successOutcome = models.Outcome{
	Account:  "acct",
	Kind:     models.OutcomeSuccess,
	Seat:     162,
	Date:     "2026-09-02",
	Attempts: 3,
	Elapsed:  42 * time.Second,
}

func TestWeChatNotifySuccess(t *testing.T) {
	var got wechatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 0})
	}))
	defer srv.Close()

	n := NewWeChat(wechatConfig(srv.URL), "研学中心学生工位", zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), successOutcome))

	assert.Equal(t, "text", got.MsgType)
	assert.Contains(t, got.Text.Content, "162号座位")
	assert.Contains(t, got.Text.Content, "acct")
	assert.Contains(t, got.Text.Content, "3次")

	stats := n.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestWeChatMentionAll(t *testing.T) {
	var got wechatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 0})
	}))
	defer srv.Close()

	cfg := wechatConfig(srv.URL)
	cfg.MentionAll = true
	n := NewWeChat(cfg, "room", zap.NewNop())
	require.NoError(t, n.SendText(context.Background(), "hello"))
	assert.Equal(t, []string{"@all"}, got.Text.MentionedList)
}

func TestWeChatRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 0})
	}))
	defer srv.Close()

	n := NewWeChat(wechatConfig(srv.URL), "room", zap.NewNop())
	require.NoError(t, n.SendText(context.Background(), "retry me"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWeChatPermanentErrcodeNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 93004, ErrMsg: "bot removed"})
	}))
	defer srv.Close()

	n := NewWeChat(wechatConfig(srv.URL), "room", zap.NewNop())
	err := n.SendText(context.Background(), "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "93004")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, n.Stats().Failed)
}

func TestWeChatTogglesSuppressNotification(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 0})
	}))
	defer srv.Close()

	cfg := wechatConfig(srv.URL)
	cfg.OnSuccess = false
	n := NewWeChat(cfg, "room", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), successOutcome))
	assert.Zero(t, calls.Load())
}

func TestWeChatReportMessage(t *testing.T) {
	var got wechatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 0})
	}))
	defer srv.Close()

	report := &models.RunReport{
		Outcomes: []models.Outcome{
			successOutcome,
			{Account: "other", Kind: models.OutcomeExhausted, Date: "2026-09-02", SeatsTried: []int{158, 160}},
		},
		Elapsed: 90 * time.Second,
	}

	n := NewWeChat(wechatConfig(srv.URL), "room", zap.NewNop())
	require.NoError(t, n.NotifyReport(context.Background(), report))
	assert.Contains(t, got.Text.Content, "成功: 1 个账户")
	assert.Contains(t, got.Text.Content, "失败: 1 个账户")
	assert.Contains(t, got.Text.Content, "座位162")
}

func TestEmailNotifyBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	e := NewEmail(config.EmailConfig{
		From: "bot@example.com",
		To:   []string{"me@example.com"},
		SMTP: config.SMTPConfig{Host: "smtp.example.com", Port: 587},
	}, "研学中心学生工位")
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, e.Notify(context.Background(), successOutcome))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"me@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: ")
	assert.Contains(t, msg, "charset=UTF-8")
	assert.Contains(t, msg, "座位: 162号")
	assert.True(t, strings.Contains(msg, "\r\n\r\n"), "headers must be separated from body")
}

func TestMultiFansOut(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(wechatResponse{ErrCode: 0})
	}))
	defer srv.Close()

	var emailed bool
	email := NewEmail(config.EmailConfig{SMTP: config.SMTPConfig{Host: "h", Port: 25}}, "room")
	email.send = func(string, smtp.Auth, string, []string, []byte) error {
		emailed = true
		return nil
	}

	m := Multi{NewWeChat(wechatConfig(srv.URL), "room", zap.NewNop()), email}
	require.NoError(t, m.Notify(context.Background(), successOutcome))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, emailed)
}

func TestFromConfigDisabled(t *testing.T) {
	assert.Nil(t, FromConfig(config.NotifyConfig{}, "room", zap.NewNop()))
}
