package bot

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"wardenbot/internal/config"
	"wardenbot/internal/platform"
	"wardenbot/internal/platform/platformtest"
	"wardenbot/pkg/logx"
)

func newAppFixture(t *testing.T) (*App, *platformtest.Fake) {
	t.Helper()
	fake := platformtest.New()
	fake.AddRoleDef(&platform.Role{ID: "8", Name: "teamgame"})
	fake.AddRoleDef(&platform.Role{ID: "21", Name: "staff"})
	fake.AddChannel(&platform.Channel{ID: "600", Name: "tracker"})

	cfgm := config.NewManager("")
	cfgm.Commit(&config.Config{
		Channels: config.ChannelsConfig{Tracker: "tracker"},
		Roles: config.RolesConfig{
			Join: []string{"8"},
		},
		Moderation:     config.ModConfig{MinAccountAge: "168h"},
		WelcomeMessage: "Welcome to the server!",
	})

	return &App{cfgm: cfgm, client: fake, log: logx.Nop()}, fake
}

// snowflakeFor builds an ID whose embedded creation time is ts.
func snowflakeFor(ts time.Time) string {
	return strconv.FormatUint(uint64(ts.UnixMilli()-1420070400000)<<22, 10)
}

func TestJoinAppliesRolesAndWelcome(t *testing.T) {
	app, fake := newAppFixture(t)
	id := snowflakeFor(time.Now().Add(-30 * 24 * time.Hour))

	app.onMemberJoin(context.Background(), &platform.Member{ID: id, Username: "alice"})

	calls := fake.CallsOf("AddRole")
	if len(calls) != 1 || calls[0].Args[1] != "8" {
		t.Fatalf("join role not applied: %v", calls)
	}
	if calls := fake.CallsOf("Ban"); calls != nil {
		t.Fatalf("established account banned: %v", calls)
	}
	msgs := fake.DirectMsgs[id]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Welcome") {
		t.Fatalf("welcome DM missing: %v", msgs)
	}
}

func TestJoinBansFreshAccount(t *testing.T) {
	app, fake := newAppFixture(t)
	id := snowflakeFor(time.Now().Add(-24 * time.Hour))

	app.onMemberJoin(context.Background(), &platform.Member{ID: id, Username: "troll"})

	if got := len(fake.CallsOf("Ban")); got != 1 {
		t.Fatalf("expected ban, got %d calls", got)
	}
	if calls := fake.CallsOf("AddRole"); calls != nil {
		t.Fatalf("banned account must not get join roles: %v", calls)
	}
	if len(fake.DirectMsgs[id]) != 0 {
		t.Fatal("banned account must not get a welcome DM")
	}
}

func TestJoinWithHeuristicDisabled(t *testing.T) {
	app, fake := newAppFixture(t)
	cfg := *app.cfgm.Get()
	cfg.Moderation.MinAccountAge = ""
	app.cfgm.Commit(&cfg)

	id := snowflakeFor(time.Now().Add(-time.Hour))
	app.onMemberJoin(context.Background(), &platform.Member{ID: id, Username: "newbie"})

	if calls := fake.CallsOf("Ban"); calls != nil {
		t.Fatalf("heuristic disabled but still banned: %v", calls)
	}
	if got := len(fake.CallsOf("AddRole")); got != 1 {
		t.Fatalf("expected join role, got %d calls", got)
	}
}

func TestLeavePostsTrackerNotice(t *testing.T) {
	app, fake := newAppFixture(t)
	app.onMemberLeave(context.Background(), &platform.Member{ID: "1", Username: "alice"})

	msgs := fake.ChannelMsgs["600"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "alice left the server") {
		t.Fatalf("tracker notice missing: %v", msgs)
	}
}

func TestMemberUpdateReportsRoleDiff(t *testing.T) {
	app, fake := newAppFixture(t)
	before := &platform.Member{ID: "1", Username: "alice", Roles: []string{"21"}}
	after := &platform.Member{ID: "1", Username: "alice", Roles: nil}

	app.onMemberUpdate(context.Background(), before, after)

	msgs := fake.ChannelMsgs["600"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Username alice lost role staff") {
		t.Fatalf("role loss not reported: %v", msgs)
	}

	app.onMemberUpdate(context.Background(), after, before)
	msgs = fake.ChannelMsgs["600"]
	if len(msgs) != 2 || !strings.Contains(msgs[1], "Username alice gained role staff") {
		t.Fatalf("role gain not reported: %v", msgs)
	}
}

func TestMemberUpdateIgnoresJoinRoles(t *testing.T) {
	app, fake := newAppFixture(t)
	before := &platform.Member{ID: "1", Username: "alice"}
	after := &platform.Member{ID: "1", Username: "alice", Roles: []string{"8"}}

	app.onMemberUpdate(context.Background(), before, after)

	if msgs := fake.ChannelMsgs["600"]; len(msgs) != 0 {
		t.Fatalf("self-service shuffle reported: %v", msgs)
	}
}

func TestMemberUpdateNilSafe(t *testing.T) {
	app, fake := newAppFixture(t)
	app.onMemberUpdate(context.Background(), nil, &platform.Member{ID: "1"})
	app.onMemberUpdate(context.Background(), &platform.Member{ID: "1"}, nil)
	if len(fake.Calls) != 0 {
		t.Fatalf("unexpected platform calls: %v", fake.Calls)
	}
}
