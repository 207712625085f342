package poolpresenter

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/render"
)

// Sender is the chat egress. irisfast.Egress satisfies it.
type Sender interface {
	SendText(ctx context.Context, room, message string) error
	SendImage(ctx context.Context, room, imageBase64 string) error
}

// Presenter delivers formatted text and board images without coupling to the
// command layer.
type Presenter struct {
	out      Sender
	renderer render.BoardRenderer
}

func NewPresenter(out Sender, renderer render.BoardRenderer) *Presenter {
	return &Presenter{out: out, renderer: renderer}
}

func (p *Presenter) Text(ctx context.Context, room, message string) error {
	if p == nil || p.out == nil || strings.TrimSpace(message) == "" {
		return nil
	}
	return p.out.SendText(ctx, room, message)
}

// Board sends caption first, then the rendered PNG.
func (p *Presenter) Board(ctx context.Context, room, caption string, b *pool.Board) error {
	if err := p.Text(ctx, room, caption); err != nil {
		return err
	}
	if p == nil || p.out == nil || p.renderer == nil || b == nil {
		return nil
	}
	png, err := p.renderer.RenderPNG(ctx, b)
	if err != nil {
		return err
	}
	return p.out.SendImage(ctx, room, base64.StdEncoding.EncodeToString(png))
}
