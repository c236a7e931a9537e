package ws

import (
	"testing"
	"time"
)

func TestSession_RequiresJoinBeforeSend(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	// 另一条已加入的连接用来确认没有任何广播发生。
	observer := newTestClient()
	obsUser, _ := st.CreateUser("Observer")
	reg.Bind(obsUser.ID, observer)

	s.handleFrame(frame(t, TypeSendMessage, SendMessagePayload{Content: "hi", ChannelID: 1}))
	expectError(t, client, "Not authenticated")
	recvNone(t, observer)

	msgs, _ := st.ListChannelMessages(1)
	if len(msgs) != 0 {
		t.Errorf("message persisted before join: %d", len(msgs))
	}
}

func TestSession_RequiresJoinBeforeSwitch(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	s.handleFrame(frame(t, TypeSwitchChannel, SwitchChannelPayload{ChannelID: 1}))
	expectError(t, client, "Not authenticated")
}

func TestSession_Join_CreatesUser(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	observer := newTestClient()
	obsUser, _ := st.CreateUser("Observer")
	reg.Bind(obsUser.ID, observer)

	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))

	env := recv(t, client)
	if env.Type != TypeJoinSuccess {
		t.Fatalf("frame type = %s, want JOIN_SUCCESS", env.Type)
	}
	var ok JoinSuccessPayload
	decodePayload(t, env, &ok)
	if ok.User.Username != "Big Toe" {
		t.Errorf("user.username = %q, want Big Toe", ok.User.Username)
	}
	if !ok.User.Online {
		t.Error("joined user should be online")
	}
	if len(ok.Channels) != 4 {
		t.Errorf("channels = %d, want 4 defaults", len(ok.Channels))
	}

	// 加入方与旁观者都要收到同一份在线状态广播。
	for _, c := range []*Client{client, observer} {
		env := recv(t, c)
		if env.Type != TypeUsersStatus {
			t.Fatalf("frame type = %s, want USERS_STATUS", env.Type)
		}
		var status UsersStatusPayload
		decodePayload(t, env, &status)
		if len(status.Users) != 2 {
			t.Errorf("users status = %d entries, want 2", len(status.Users))
		}
	}

	u, err := st.GetUserByUsername("Big Toe")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if snap := reg.Snapshot(); len(snap) != 2 {
		t.Errorf("registry size = %d, want 2", len(snap))
	}
	if !u.Online {
		t.Error("store user not marked online")
	}
}

func TestSession_Join_CaseInsensitiveReuse(t *testing.T) {
	st, reg, hub := newTestHub()

	first := newTestClient()
	s1 := newSession(first, st, reg, hub)
	s1.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	env := recv(t, first)
	var ok1 JoinSuccessPayload
	decodePayload(t, env, &ok1)

	second := newTestClient()
	s2 := newSession(second, st, reg, hub)
	s2.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "big toe"}))
	env = recv(t, second)
	if env.Type != TypeJoinSuccess {
		t.Fatalf("frame type = %s, want JOIN_SUCCESS", env.Type)
	}
	var ok2 JoinSuccessPayload
	decodePayload(t, env, &ok2)

	if ok2.User.ID != ok1.User.ID {
		t.Errorf("case-different join id = %d, want same identity %d", ok2.User.ID, ok1.User.ID)
	}
	users, _ := st.ListUsers()
	if len(users) != 1 {
		t.Errorf("ListUsers() len = %d, want 1", len(users))
	}

	// 旧连接被顶替：注册表指向新连接，旧连接被关闭。
	snap := reg.Snapshot()
	if len(snap) != 1 || snap[0] != second {
		t.Error("registry should map the identity to the superseding connection")
	}
	select {
	case <-first.done:
	case <-time.After(100 * time.Millisecond):
		t.Error("superseded connection was not closed")
	}
}

func TestSession_Rejoin_DifferentName(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Left Toe"}))
	recv(t, client)
	recv(t, client)

	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Right Toe"}))
	env := recv(t, client)
	if env.Type != TypeJoinSuccess {
		t.Fatalf("frame type = %s, want JOIN_SUCCESS", env.Type)
	}

	// 旧身份被释放：置离线且不再占用注册表。
	left, _ := st.GetUserByUsername("Left Toe")
	if left.Online {
		t.Error("previous identity still online after rejoin")
	}
	right, _ := st.GetUserByUsername("Right Toe")
	if !right.Online {
		t.Error("new identity not online after rejoin")
	}
	if reg.Online() != 1 {
		t.Errorf("registry size = %d, want 1", reg.Online())
	}
}

func TestSession_Join_InvalidUsername(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	tests := []struct {
		name     string
		username string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too long", string(make([]byte, 65))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: tt.username}))
			expectError(t, client, "Invalid username")
			if s.state != stateAnonymous {
				t.Error("failed join must leave the session anonymous")
			}
		})
	}

	users, _ := st.ListUsers()
	if len(users) != 0 {
		t.Errorf("ListUsers() len = %d, want 0 after failed joins", len(users))
	}
}

func TestSession_SwitchChannel_ReturnsOrderedHistory(t *testing.T) {
	st, reg, hub := newTestHub()
	author, _ := st.CreateUser("Author")
	base := time.Now()
	st.AppendMessageAt("second", author.ID, 1, base.Add(time.Second))
	st.AppendMessageAt("first", author.ID, 1, base)
	st.AppendMessageAt("other channel", author.ID, 2, base)

	client := newTestClient()
	s := newSession(client, st, reg, hub)
	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	recv(t, client) // JOIN_SUCCESS
	recv(t, client) // USERS_STATUS

	observer := newTestClient()
	reg.Bind(author.ID, observer)

	s.handleFrame(frame(t, TypeSwitchChannel, SwitchChannelPayload{ChannelID: 1}))
	env := recv(t, client)
	if env.Type != TypeChannelMessages {
		t.Fatalf("frame type = %s, want CHANNEL_MESSAGES", env.Type)
	}
	var p ChannelMessagesPayload
	decodePayload(t, env, &p)
	if p.ChannelID != 1 {
		t.Errorf("channelId = %d, want 1", p.ChannelID)
	}
	if len(p.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(p.Messages))
	}
	if p.Messages[0].Content != "first" || p.Messages[1].Content != "second" {
		t.Errorf("history out of order: %q, %q", p.Messages[0].Content, p.Messages[1].Content)
	}

	// 频道历史只回给发起方。
	recvNone(t, observer)
}

func TestSession_SwitchChannel_NotFound(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)
	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	recv(t, client)
	recv(t, client)

	s.handleFrame(frame(t, TypeSwitchChannel, SwitchChannelPayload{ChannelID: 999}))
	expectError(t, client, "Channel not found")
}

func TestSession_SendMessage_BroadcastsToAll(t *testing.T) {
	st, reg, hub := newTestHub()

	sender := newTestClient()
	s := newSession(sender, st, reg, hub)
	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	recv(t, sender)
	recv(t, sender)

	// 第二条存活连接，哪怕它切在别的频道也要收到广播。
	observer := newTestClient()
	obsUser, _ := st.CreateUser("Observer")
	reg.Bind(obsUser.ID, observer)

	s.handleFrame(frame(t, TypeSendMessage, SendMessagePayload{Content: "hi", ChannelID: 1}))

	for _, c := range []*Client{sender, observer} {
		env := recv(t, c)
		if env.Type != TypeNewMessage {
			t.Fatalf("frame type = %s, want NEW_MESSAGE", env.Type)
		}
		var msg struct {
			ID        uint   `json:"id"`
			Content   string `json:"content"`
			UserID    uint   `json:"userId"`
			Username  string `json:"username"`
			ChannelID uint   `json:"channelId"`
			Timestamp string `json:"timestamp"`
		}
		decodePayload(t, env, &msg)
		if msg.Content != "hi" {
			t.Errorf("content = %q, want hi", msg.Content)
		}
		if msg.Username != "Big Toe" {
			t.Errorf("username = %q, want Big Toe", msg.Username)
		}
		if msg.ChannelID != 1 {
			t.Errorf("channelId = %d, want 1", msg.ChannelID)
		}
		if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
			t.Errorf("timestamp %q not ISO-8601: %v", msg.Timestamp, err)
		}
	}

	msgs, _ := st.ListChannelMessages(1)
	if len(msgs) != 1 {
		t.Errorf("persisted messages = %d, want exactly 1", len(msgs))
	}
}

func TestSession_Ping_AnyState(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	observer := newTestClient()
	obsUser, _ := st.CreateUser("Observer")
	reg.Bind(obsUser.ID, observer)

	// 未认证也能 PING。
	s.handleFrame(frame(t, TypePing, struct{}{}))
	env := recv(t, client)
	if env.Type != TypePong {
		t.Fatalf("frame type = %s, want PONG", env.Type)
	}
	var p PongPayload
	decodePayload(t, env, &p)
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("pong timestamp %q not ISO-8601: %v", p.Timestamp, err)
	}
	recvNone(t, client)
	recvNone(t, observer)
}

func TestSession_UnknownMessageType(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	s.handleFrame(frame(t, "DANCE", struct{}{}))
	expectError(t, client, "Unknown message type")
}

func TestSession_MalformedEnvelope(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	s.handleFrame([]byte("this is not json"))
	expectError(t, client, "Failed to process message")

	// 连接没有被关闭，后续帧照常处理。
	s.handleFrame(frame(t, TypePing, struct{}{}))
	if env := recv(t, client); env.Type != TypePong {
		t.Errorf("frame type after malformed envelope = %s, want PONG", env.Type)
	}
}

func TestSession_Teardown_Joined(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)
	s.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	recv(t, client)
	recv(t, client)

	observer := newTestClient()
	obsUser, _ := st.CreateUser("Observer")
	reg.Bind(obsUser.ID, observer)

	s.teardown()

	u, _ := st.GetUserByUsername("Big Toe")
	if u.Online {
		t.Error("user still online after teardown")
	}
	env := recv(t, observer)
	if env.Type != TypeUsersStatus {
		t.Fatalf("frame type = %s, want USERS_STATUS", env.Type)
	}
	recvNone(t, observer)

	if snap := reg.Snapshot(); len(snap) != 1 || snap[0] != observer {
		t.Error("teardown did not unbind the connection")
	}

	// 重复收尾是幂等的：不再有第二次广播。
	s.teardown()
	recvNone(t, observer)
}

func TestSession_Teardown_Anonymous(t *testing.T) {
	st, reg, hub := newTestHub()
	client := newTestClient()
	s := newSession(client, st, reg, hub)

	observer := newTestClient()
	obsUser, _ := st.CreateUser("Observer")
	reg.Bind(obsUser.ID, observer)

	s.teardown()

	if s.state != stateClosed {
		t.Error("anonymous teardown must close the session")
	}
	recvNone(t, observer)

	// 收尾后不再处理任何帧。
	s.handleFrame(frame(t, TypePing, struct{}{}))
	recvNone(t, client)
}

func TestSession_Teardown_SupersededKeepsIdentityOnline(t *testing.T) {
	st, reg, hub := newTestHub()

	first := newTestClient()
	s1 := newSession(first, st, reg, hub)
	s1.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	recv(t, first)
	recv(t, first)

	second := newTestClient()
	s2 := newSession(second, st, reg, hub)
	s2.handleFrame(frame(t, TypeJoin, JoinPayload{Username: "Big Toe"}))
	recv(t, second)
	recv(t, second)

	// 被顶替的旧连接收尾时，身份的在线状态归新连接管。
	s1.teardown()

	u, _ := st.GetUserByUsername("Big Toe")
	if !u.Online {
		t.Error("identity went offline although the superseding connection is alive")
	}
	recvNone(t, second)
	if snap := reg.Snapshot(); len(snap) != 1 || snap[0] != second {
		t.Error("superseded teardown disturbed the new binding")
	}
}
