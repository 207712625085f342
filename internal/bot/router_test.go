package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Squares-KakaoTalk-bot/internal/adapter/poolpresenter"
	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Squares-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/scorefeed"
	"github.com/redis/go-redis/v9"
)

type sent struct {
	room  string
	text  string
	image bool
}

type fakeSender struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeSender) SendText(_ context.Context, room, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{room: room, text: message})
	return nil
}

func (f *fakeSender) SendImage(_ context.Context, room, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{room: room, image: true})
	return nil
}

func (f *fakeSender) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.out[len(f.out)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

type stubRenderer struct{}

func (stubRenderer) RenderPNG(context.Context, *pool.Board) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

type harness struct {
	router *Router
	mgr    *pool.Manager
	out    *fakeSender
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	mgr := pool.NewManager(pool.NewRedisStore(rdb, time.Hour),
		pool.WithDefaults(pool.Defaults{Size: 10, AxisMode: grid.AxisSequential}))
	out := &fakeSender{}
	r := NewRouter("!sq", mgr, poolpresenter.NewPresenter(out, stubRenderer{}), nil, opts...)
	r.format = poolpresenter.NewFormatter(cat, r, time.UTC)
	return &harness{router: r, mgr: mgr, out: out}
}

func (h *harness) say(t *testing.T, user, name, text string) sent {
	t.Helper()
	n := name
	before := h.out.count()
	h.router.Handle(context.Background(), &irisfast.Message{
		Msg:    text,
		Room:   "room1",
		Sender: &n,
		JSON:   &irisfast.MessageJSON{UserID: user},
	})
	if h.out.count() == before {
		t.Fatalf("%q: no reply", text)
	}
	return h.out.last(t)
}

func TestCreateClaimAndTaken(t *testing.T) {
	h := newHarness(t)

	got := h.say(t, "org", "Host", "!sq 생성 결승전 순서 SF@KC")
	if !strings.Contains(got.text, "결승전") || !strings.Contains(got.text, "SQ-") {
		t.Fatalf("created reply: %q", got.text)
	}
	got = h.say(t, "u1", "Kim", "!sq 선택 4,7")
	if !strings.Contains(got.text, "Kim") || !strings.Contains(got.text, "(4,7)") {
		t.Fatalf("claim reply: %q", got.text)
	}
	got = h.say(t, "u2", "Lee", "!sq claim 4 7")
	if !strings.Contains(got.text, "이미 선택된 칸") {
		t.Fatalf("taken reply: %q", got.text)
	}
	got = h.say(t, "u2", "Lee", "!sq 취소 4,7")
	if !strings.Contains(got.text, "본인이 선택한 칸만") {
		t.Fatalf("not owner reply: %q", got.text)
	}
	got = h.say(t, "u1", "Kim", "!sq 선택 10,0")
	if !strings.Contains(got.text, "0부터 9까지") {
		t.Fatalf("bounds reply: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 생성 두번째")
	if !strings.Contains(got.text, "이미 진행 중인 풀") {
		t.Fatalf("busy reply: %q", got.text)
	}
}

func TestCreateRejectsOversizedBoard(t *testing.T) {
	h := newHarness(t)
	got := h.say(t, "org", "Host", "!sq 생성 큰판 크기 1048576")
	if !strings.Contains(got.text, "입력값을 확인해") {
		t.Fatalf("oversized reply: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 생성 작은판 크기 5")
	if !strings.Contains(got.text, "작은판") {
		t.Fatalf("room should still be free: %q", got.text)
	}
}

func TestScoreAnnouncesWinnerAndResults(t *testing.T) {
	h := newHarness(t)
	h.say(t, "org", "Host", "!sq 생성 결승전 순서")
	h.say(t, "u1", "Kim", "!sq 선택 4,7")

	got := h.say(t, "u1", "Kim", "!sq 점수 1 17 14")
	if !strings.Contains(got.text, "운영자만") {
		t.Fatalf("non moderator score: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 점수 1 17 14")
	if !strings.Contains(got.text, "1쿼터 17:14") || !strings.Contains(got.text, "Kim") {
		t.Fatalf("score reply: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 점수 2 20 20")
	if !strings.Contains(got.text, "당첨자 없음") {
		t.Fatalf("empty cell reply: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 점수 5 30 30")
	if !strings.Contains(got.text, "연장1") {
		t.Fatalf("overtime reply: %q", got.text)
	}
	got = h.say(t, "u1", "Kim", "!sq 결과")
	if !strings.Contains(got.text, "1쿼터: 17:14 → Kim") {
		t.Fatalf("results reply: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 점수 x 1 2")
	if !strings.Contains(got.text, "사용법") {
		t.Fatalf("usage reply: %q", got.text)
	}
}

func TestBoardSendsCaptionThenImage(t *testing.T) {
	h := newHarness(t)
	h.say(t, "org", "Host", "!sq 생성 결승전")
	h.say(t, "u1", "Kim", "!sq 선택 0,0")

	before := h.out.count()
	got := h.say(t, "u1", "Kim", "!sq 보드")
	if !got.image {
		t.Fatalf("expected image last, got %+v", got)
	}
	caption := h.out.out[before].text
	if !strings.Contains(caption, "1/100") || !strings.Contains(caption, "K = Kim") {
		t.Fatalf("caption: %q", caption)
	}
}

func TestGuestKickAndModerator(t *testing.T) {
	h := newHarness(t)
	h.say(t, "org", "Host", "!sq 생성 결승전")

	got := h.say(t, "u1", "Kim", "!sq 게스트 Park 1,1")
	if !strings.Contains(got.text, "운영자만") {
		t.Fatalf("guest by player: %q", got.text)
	}
	got = h.say(t, "org", "Host", "!sq 게스트 Park Jr 2 3")
	if !strings.Contains(got.text, "Park Jr") || !strings.Contains(got.text, "(2,3)") {
		t.Fatalf("guest reply: %q", got.text)
	}
	h.say(t, "org", "Host", "!sq 운영자 u9")
	h.say(t, "u1", "Kim", "!sq 선택 5,5")
	h.say(t, "u1", "Kim", "!sq 선택 6,6")
	got = h.say(t, "u9", "Mod", "!sq 강퇴 @u1")
	if !strings.Contains(got.text, "u1") || !strings.Contains(got.text, "2개") {
		t.Fatalf("kick reply: %q", got.text)
	}
}

func TestFinalizeAndNoPool(t *testing.T) {
	h := newHarness(t)
	got := h.say(t, "u1", "Kim", "!sq 보드")
	if !strings.Contains(got.text, "진행 중인 풀이 없습니다") || !strings.Contains(got.text, "!sq 생성") {
		t.Fatalf("no pool reply: %q", got.text)
	}
	h.say(t, "org", "Host", "!sq 생성 결승전 순서")
	h.say(t, "u1", "Kim", "!sq 선택 4,7")
	h.say(t, "org", "Host", "!sq 점수 1 17 14")
	got = h.say(t, "org", "Host", "!sq 종료")
	if !strings.Contains(got.text, "결승전 종료") || !strings.Contains(got.text, "Kim") {
		t.Fatalf("final reply: %q", got.text)
	}
	got = h.say(t, "u1", "Kim", "!sq 선택 1,1")
	if !strings.Contains(got.text, "진행 중인 풀이 없습니다") {
		t.Fatalf("after final: %q", got.text)
	}
	got = h.say(t, "u1", "Kim", "!sq 기록")
	if !strings.Contains(got.text, "기록 저장소") {
		t.Fatalf("history disabled: %q", got.text)
	}
}

type fakeHistory struct{ pools []pool.ArchivedPool }

func (f fakeHistory) RecentByRoom(context.Context, string, int) ([]pool.ArchivedPool, error) {
	return f.pools, nil
}

func TestHistory(t *testing.T) {
	h := newHarness(t, WithHistory(fakeHistory{pools: []pool.ArchivedPool{{
		Name:    "결승전",
		Code:    "SQ-ABC123",
		Sweeper: "Kim",
		Winners: map[int]string{2: "Lee", 1: "Kim"},
	}}}))
	got := h.say(t, "u1", "Kim", "!sq history")
	for _, want := range []string{"SQ-ABC123", "싹쓸이 Kim", "1쿼터: Kim", "2쿼터: Lee"} {
		if !strings.Contains(got.text, want) {
			t.Fatalf("history missing %q: %q", want, got.text)
		}
	}
	if strings.Index(got.text, "1쿼터") > strings.Index(got.text, "2쿼터") {
		t.Fatalf("periods out of order: %q", got.text)
	}
}

func TestIgnoresOtherRoomsAndPrefixes(t *testing.T) {
	h := newHarness(t, WithRoomFilter(func(room string) bool { return room == "room1" }))
	ctx := context.Background()
	n := "Kim"
	h.router.Handle(ctx, &irisfast.Message{Msg: "!sq 도움말", Room: "room2", Sender: &n})
	h.router.Handle(ctx, &irisfast.Message{Msg: "hello", Room: "room1", Sender: &n})
	h.router.Handle(ctx, nil)
	if h.out.count() != 0 {
		t.Fatalf("expected no replies, got %d", h.out.count())
	}
	got := h.say(t, "u1", "Kim", "!sq")
	if !strings.Contains(got.text, "스퀘어 풀 명령어") {
		t.Fatalf("help reply: %q", got.text)
	}
}

func TestNotifyFeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, err := h.mgr.Create(ctx, pool.CreateRequest{Room: "room1", Name: "결승전", OrganizerID: "org"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.mgr.Claim(ctx, p.ID, grid.Cell{Row: 4, Column: 7}, grid.Claim{Owner: "u1", DisplayName: "Kim"}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	res, err := h.mgr.ApplyFeed(ctx, p.ID, []grid.QuarterScore{grid.Score(1, 17, 14)})
	if err != nil || len(res) != 1 {
		t.Fatalf("ApplyFeed: %v %v", res, err)
	}
	h.router.NotifyFeed(ctx, scorefeed.Update{Pool: p, Resolved: res})
	got := h.out.last(t)
	if got.room != "room1" || !strings.Contains(got.text, "Kim") || !strings.Contains(got.text, "17:14") {
		t.Fatalf("feed reply: %+v", got)
	}

	b, err := h.mgr.Finalize(ctx, p.ID, pool.SystemActor)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	h.router.NotifyFeed(ctx, scorefeed.Update{Pool: p, Final: b})
	if !h.out.last(t).image {
		t.Fatalf("final update should end with the board image")
	}
}

func TestParseDeadline(t *testing.T) {
	now := time.Date(2026, 2, 8, 18, 0, 0, 0, time.UTC)
	if d, ok := ParseDeadline("30m", now, time.UTC); !ok || !d.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("duration: %v %v", d, ok)
	}
	if d, ok := ParseDeadline("19:30", now, time.UTC); !ok || d.Day() != 8 || d.Hour() != 19 {
		t.Fatalf("later today: %v %v", d, ok)
	}
	if d, ok := ParseDeadline("09:00", now, time.UTC); !ok || d.Day() != 9 {
		t.Fatalf("tomorrow: %v %v", d, ok)
	}
	for _, bad := range []string{"", "-5m", "25:00", "soon"} {
		if _, ok := ParseDeadline(bad, now, time.UTC); ok {
			t.Fatalf("%q should not parse", bad)
		}
	}
}
