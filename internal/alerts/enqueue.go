package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// ensureClient returns a usable client instance
func ensureClient() *asynq.Client {
	if client == nil {
		Init()
	}
	return client
}

// CampusEmail derives a student's campus mailbox from their student id.
func CampusEmail(studentID string) string {
	domain := os.Getenv("CAMPUS_MAIL_DOMAIN")
	if domain == "" {
		domain = "stu.campus.edu"
	}
	return studentID + "@" + domain
}

// EnqueueMessageNew notifies the receiver of a new chat message
func EnqueueMessageNew(conversationID, senderID, receiverID, email, preview string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "你有一条新消息",
		Body:    fmt.Sprintf("收到一条新消息：%s\n\n请打开应用查看会话。", preview),
	}
	payload := MessageNewPayload{ConversationID: conversationID, SenderID: senderID, ReceiverID: receiverID, Email: email, Preview: preview, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskMessageNew, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

// EnqueueTaskDelivered notifies the publisher that the acceptor delivered
func EnqueueTaskDelivered(taskID, actorID, receiverID, email string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "任务已送达，请验收",
		Body:    fmt.Sprintf("任务 %s 已由接单同学送达，请尽快验收并完成转账。", taskID),
	}
	return enqueueTransition(TaskTaskDelivered, taskID, actorID, receiverID, email, env)
}

// EnqueueTaskPaid notifies the acceptor that the publisher confirmed and paid
func EnqueueTaskPaid(taskID, actorID, receiverID, email string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "发布者已验收并转账",
		Body:    fmt.Sprintf("任务 %s 的发布者已确认验收并转账，请确认收款。", taskID),
	}
	return enqueueTransition(TaskTaskPaid, taskID, actorID, receiverID, email, env)
}

// EnqueueTaskCompleted notifies the publisher that the transaction closed
func EnqueueTaskCompleted(taskID, actorID, receiverID, email string) error {
	env := EmailEnvelope{
		To:      email,
		Subject: "交易完成",
		Body:    fmt.Sprintf("任务 %s 的接单同学已确认收款，订单结束。", taskID),
	}
	return enqueueTransition(TaskTaskCompleted, taskID, actorID, receiverID, email, env)
}

// EnqueuePasswordReset mails a short-lived reset link
func EnqueuePasswordReset(profileID, email, resetURL, name string) error {
	greeting := name
	if greeting == "" {
		greeting = "同学"
	}
	env := EmailEnvelope{
		To:      email,
		Subject: "重置密码",
		Body:    fmt.Sprintf("%s你好，\n\n点击以下链接重置密码（30分钟内有效）：\n%s\n\n如果不是你本人操作，请忽略这封邮件。", greeting, resetURL),
	}
	payload := PasswordResetPayload{ProfileID: profileID, Email: email, ResetURL: resetURL, Name: name, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskPasswordReset, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}

func enqueueTransition(kind, taskID, actorID, receiverID, email string, env EmailEnvelope) error {
	payload := TransitionPayload{TaskID: taskID, ActorID: actorID, ReceiverID: receiverID, Email: email, Envelope: env, SentAt: time.Now()}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(kind, b)
	_, err := ensureClient().Enqueue(task, asynq.Queue("emails"))
	return err
}
