package device

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/sasa-studio/studio/internal/playback"
)

// Speaker pulls a Timeline through the default output device. The device
// read position drives the timeline clock.
type Speaker struct {
	player *oto.Player
}

// OpenSpeaker starts playback of tl. oto allows one context per process.
func OpenSpeaker(tl *playback.Timeline, buffer time.Duration) (*Speaker, error) {
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   tl.SampleRate(),
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	p := ctx.NewPlayer(tl)
	p.Play()
	return &Speaker{player: p}, nil
}

func (s *Speaker) Close() error {
	return s.player.Close()
}
