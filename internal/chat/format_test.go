package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

func TestRenderSystemPerspectives(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		actorRole string
		wantSelf  string
		wantOther string
	}{
		{"accepted by acceptor", TplAccepted, RoleAcceptor, "我已接单，马上出发！", "对方已接单，马上出发。"},
		{"delivered by acceptor", TplDelivered, RoleAcceptor, "我已送达，请确认。", "对方已送达，请确认。"},
		{"paid by publisher", TplPaid, RolePublisher, "我已确认验收并转账。", "发布者已确认验收并转账，请查收。"},
		{"received by acceptor", TplReceived, RoleAcceptor, "已确认收款，交易完成！", "对方已确认收款，订单结束。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counterpart := RolePublisher
			if tt.actorRole == RolePublisher {
				counterpart = RoleAcceptor
			}
			assert.Equal(t, tt.wantSelf, RenderSystem(tt.template, tt.actorRole, tt.actorRole))
			assert.Equal(t, tt.wantOther, RenderSystem(tt.template, tt.actorRole, counterpart))
		})
	}
}

func TestRenderSystemIsPure(t *testing.T) {
	// The stored message never changes; rendering twice for the same viewer
	// yields the same text, and rendering for the other viewer does not
	// depend on prior renders.
	a := RenderSystem(TplDelivered, RoleAcceptor, RolePublisher)
	b := RenderSystem(TplDelivered, RoleAcceptor, RolePublisher)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, RenderSystem(TplDelivered, RoleAcceptor, RoleAcceptor))
}

func TestRenderSystemUnknownTemplate(t *testing.T) {
	assert.Equal(t, "[系统消息]", RenderSystem("bogus", RoleAcceptor, RoleAcceptor))
}

func TestDisplayTextPassthroughForUserMessages(t *testing.T) {
	m := store.Message{Type: "user", Content: "对方已接单？帮我看看"}
	// User text containing system-like phrases must never be rewritten.
	assert.Equal(t, m.Content, DisplayText(m, RolePublisher))
	assert.Equal(t, m.Content, DisplayText(m, RoleAcceptor))
}

func TestDisplayTextSystemMessage(t *testing.T) {
	m := store.Message{Type: "system", SysTemplate: TplPaid, SysActorRole: RolePublisher}
	assert.Equal(t, "我已确认验收并转账。", DisplayText(m, RolePublisher))
	assert.Equal(t, "发布者已确认验收并转账，请查收。", DisplayText(m, RoleAcceptor))
}
