package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	xerrors "BullShip-Merchant/internal/errors"
)

type recordingEmailSender struct {
	subject string
	content string
	to      []string
	err     error
}

func (s *recordingEmailSender) Send(_ context.Context, subject, content string, to []string) error {
	s.subject = subject
	s.content = content
	s.to = to
	return s.err
}

type recordingSlackSender struct {
	channel string
	content string
}

func (s *recordingSlackSender) Send(_ context.Context, channel, content string) error {
	s.channel = channel
	s.content = content
	return nil
}

func TestFanoutNotifiesAllChannels(t *testing.T) {
	emailSender := &recordingEmailSender{}
	slackSender := &recordingSlackSender{}
	dispatcher := NewFanout(
		&EmailNotifier{Sender: emailSender, To: []string{"ops@example.com"}, SubjectPrefix: "[settle]"},
		&SlackNotifier{Sender: slackSender, ChannelID: "C123"},
	)

	event := Event{
		Code:       xerrors.CodeStorageFailure,
		Message:    "写入结算结果失败",
		Severity:   xerrors.SeverityCritical,
		JobID:      "job-1",
		Chain:      "sepolia",
		StockToken: "0x00000000000000000000000000000000000000b2",
		Attempts:   3,
		MaxRetries: 3,
		Metadata:   map[string]string{"stage": "terminal"},
		OccurredAt: time.Now().UTC(),
	}
	if err := dispatcher.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(emailSender.to) != 1 || emailSender.to[0] != "ops@example.com" {
		t.Fatalf("邮件收件人不符合预期: %v", emailSender.to)
	}
	if !strings.Contains(emailSender.subject, string(xerrors.CodeStorageFailure)) {
		t.Fatalf("邮件主题缺少错误码: %s", emailSender.subject)
	}
	if !strings.Contains(emailSender.content, "job-1") || !strings.Contains(emailSender.content, "stage") {
		t.Fatalf("邮件内容缺少任务详情: %s", emailSender.content)
	}
	if slackSender.channel != "C123" || !strings.Contains(slackSender.content, "3/3") {
		t.Fatalf("Slack 消息不符合预期: channel=%s content=%s", slackSender.channel, slackSender.content)
	}
}

func TestFanoutJoinsChannelErrors(t *testing.T) {
	emailSender := &recordingEmailSender{err: errors.New("smtp unreachable")}
	dispatcher := NewFanout(
		&EmailNotifier{Sender: emailSender, To: []string{"ops@example.com"}},
	)

	err := dispatcher.Notify(context.Background(), Event{JobID: "job-2"})
	if err == nil {
		t.Fatal("expected error from email channel")
	}
	if !strings.Contains(err.Error(), "channel email") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnconfiguredNotifiersAreSkipped(t *testing.T) {
	dispatcher := NewFanout(
		&EmailNotifier{},
		&DingTalkNotifier{},
		&SlackNotifier{},
	)
	if err := dispatcher.Notify(context.Background(), Event{JobID: "job-3"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
}
