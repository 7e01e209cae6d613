package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sent struct {
	kind string
	text string
}

type fakeMessenger struct {
	log       []sent
	textErr   error
	docErr    error
	docCalled int
}

func (m *fakeMessenger) SendText(_ context.Context, _ int64, text string) error {
	m.log = append(m.log, sent{kind: "text", text: text})
	return m.textErr
}

func (m *fakeMessenger) SendDocumentURL(_ context.Context, _ int64, url, filename string) error {
	m.docCalled++
	m.log = append(m.log, sent{kind: "doc", text: filename + " " + url})
	return m.docErr
}

type fakeLarge struct {
	err   error
	calls int
}

func (l *fakeLarge) SendDocument(context.Context, int64, string, string) error {
	l.calls++
	return l.err
}

type fakePresign struct {
	err     error
	size    int64 // stored size; 0 reports the request size
	missing bool
	statErr error
}

func (p fakePresign) Stat(_ context.Context, _ string) (int64, bool, error) {
	if p.statErr != nil {
		return 0, false, p.statErr
	}
	if p.missing {
		return 0, false, nil
	}
	if p.size == 0 {
		return req.Size, true, nil
	}
	return p.size, true, nil
}

func (p fakePresign) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.test/" + key, nil
}

type fakeShort struct {
	out string
	err error
}

func (s fakeShort) Shorten(_ context.Context, _ string, long string) (string, error) {
	if s.err != nil {
		return long, s.err
	}
	return s.out, nil
}

type tokens string

func (t tokens) ShortenerToken(context.Context, int64) string { return string(t) }

var req = Request{UserID: 1, ChatID: 10, Key: "1/out/x.mkv", Size: 100}

func TestDeliverDirect(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	d := New(msg, nil, fakePresign{}, fakeShort{out: "https://gpl.ink/x"}, tokens("tok"), Config{DirectLimit: 1000}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.True(t, rep.LinkSent)
	require.True(t, rep.DirectSent)
	require.True(t, rep.Delivered())
	require.Equal(t, "https://gpl.ink/x", rep.Link)
	require.Equal(t, []sent{
		{kind: "text", text: "Your file is ready:\nhttps://gpl.ink/x"},
		{kind: "doc", text: "merged.mkv https://s3.test/1/out/x.mkv"},
	}, msg.log)
}

func TestDeliverShortenerFailureSendsRawLink(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	d := New(msg, nil, fakePresign{}, fakeShort{err: errors.New("503")}, tokens("tok"), Config{}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.Error(t, rep.ShortErr)
	require.Equal(t, "https://s3.test/1/out/x.mkv", rep.Link)
	require.Equal(t, "Your file is ready:\nhttps://s3.test/1/out/x.mkv", msg.log[0].text)
}

func TestDeliverNoTokenSkipsShortener(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	d := New(msg, nil, fakePresign{}, fakeShort{out: "never"}, tokens(""), Config{}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, rep.URL, rep.Link)
}

func TestDeliverTooLargeUsesLargeSender(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	large := &fakeLarge{}
	d := New(msg, large, fakePresign{}, nil, nil, Config{DirectLimit: 50}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.Zero(t, msg.docCalled, "direct send is skipped above the limit")
	require.ErrorIs(t, rep.DirectErr, ErrTooLarge)
	require.True(t, rep.LargeSent)
	require.Equal(t, 1, large.calls)
	require.Equal(t, "Sent via the large-file uploader.", msg.log[len(msg.log)-1].text)
}

func TestDeliverDirectFailureWithoutLargeSender(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{docErr: errors.New("Request Entity Too Large")}
	d := New(msg, nil, fakePresign{}, nil, nil, Config{}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.True(t, rep.LinkSent)
	require.False(t, rep.Delivered())
	require.Contains(t, msg.log[len(msg.log)-1].text, "Use the link above")
}

func TestDeliverLargeSenderFailure(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{docErr: errors.New("too big")}
	large := &fakeLarge{err: errors.New("local api down")}
	d := New(msg, large, fakePresign{}, nil, nil, Config{}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.False(t, rep.Delivered())
	require.Error(t, rep.LargeErr)
	require.Contains(t, msg.log[len(msg.log)-1].text, "local api down")
}

func TestDeliverLinkFailureStillTriesDocument(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{textErr: errors.New("flood wait")}
	d := New(msg, nil, fakePresign{}, nil, nil, Config{}, nil)

	rep, err := d.Deliver(context.Background(), req)
	require.NoError(t, err)
	require.False(t, rep.LinkSent)
	require.True(t, rep.DirectSent)
}

func TestDeliverUsesStoredSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		objects    fakePresign
		wantDirect bool
	}{
		{name: "stored size above limit", objects: fakePresign{size: 5000}, wantDirect: false},
		{name: "stored size below limit", objects: fakePresign{size: 10}, wantDirect: true},
		{name: "stat failure keeps reported size", objects: fakePresign{statErr: errors.New("timeout")}, wantDirect: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := &fakeMessenger{}
			d := New(msg, nil, tt.objects, nil, nil, Config{DirectLimit: 1000}, nil)

			rep, err := d.Deliver(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, tt.wantDirect, rep.DirectSent)
			if !tt.wantDirect {
				require.ErrorIs(t, rep.DirectErr, ErrTooLarge)
				require.Zero(t, msg.docCalled)
			}
		})
	}
}

func TestDeliverMissingOutput(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	d := New(msg, nil, fakePresign{missing: true}, nil, nil, Config{}, nil)

	_, err := d.Deliver(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingOutput)
	require.Empty(t, msg.log)
}

func TestDeliverPresignFailure(t *testing.T) {
	t.Parallel()
	msg := &fakeMessenger{}
	d := New(msg, nil, fakePresign{err: errors.New("no creds")}, nil, nil, Config{}, nil)

	_, err := d.Deliver(context.Background(), req)
	require.Error(t, err)
	require.Empty(t, msg.log)
}
