package chat

import "github.com/ritachen3656251-design/Danlink/internal/store"

// Participant roles within one conversation.
const (
	RolePublisher = "publisher"
	RoleAcceptor  = "acceptor"
)

// System message templates. A system message stores {template, actor role}
// as structured data; the display text is rendered per viewer at read time
// and the stored bytes are never rewritten.
const (
	TplAccepted  = "accepted"  // acceptor committed to the task
	TplDelivered = "delivered" // acceptor delivered, awaiting publisher
	TplPaid      = "paid"      // publisher confirmed and paid off-platform
	TplReceived  = "received"  // acceptor confirmed receipt, transaction done
)

type sysText struct {
	self  string // viewer is the actor
	other string // viewer is the counterpart
}

var sysTexts = map[string]sysText{
	TplAccepted:  {self: "我已接单，马上出发！", other: "对方已接单，马上出发。"},
	TplDelivered: {self: "我已送达，请确认。", other: "对方已送达，请确认。"},
	TplPaid:      {self: "我已确认验收并转账。", other: "发布者已确认验收并转账，请查收。"},
	TplReceived:  {self: "已确认收款，交易完成！", other: "对方已确认收款，订单结束。"},
}

// RenderSystem produces the viewer-facing text for a system message. The same
// stored message renders "我…" for the actor and "对方…" for the counterpart.
func RenderSystem(template, actorRole, viewerRole string) string {
	t, ok := sysTexts[template]
	if !ok {
		return "[系统消息]"
	}
	if viewerRole == actorRole {
		return t.self
	}
	return t.other
}

// DisplayText renders a message for the given viewer role. User messages pass
// through unchanged; system messages go through the perspectival formatter.
func DisplayText(m store.Message, viewerRole string) string {
	if m.Type != "system" {
		return m.Content
	}
	return RenderSystem(m.SysTemplate, m.SysActorRole, viewerRole)
}
