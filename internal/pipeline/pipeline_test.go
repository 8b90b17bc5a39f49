package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxwei/maildigest/internal/analysis"
	"github.com/maxwei/maildigest/internal/store"
	"github.com/maxwei/maildigest/pkg/types"
)

type fakeConnector struct {
	emails     []*types.Email
	connectErr error
	fetchErr   error
	loggedOut  bool
	criteria   *imap.SearchCriteria
}

func (f *fakeConnector) Connect() error { return f.connectErr }

func (f *fakeConnector) FetchMessages(mailbox string, criteria *imap.SearchCriteria) ([]*types.Email, error) {
	f.criteria = criteria
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.emails, nil
}

func (f *fakeConnector) Logout() { f.loggedOut = true }

// fakeAnalyzer replays scripted errors; a call past the script succeeds.
type fakeAnalyzer struct {
	errs       []error
	withImages []bool
	result     string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []types.Message, _ string, includeImages bool) (string, error) {
	call := len(f.withImages)
	f.withImages = append(f.withImages, includeImages)
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	return f.result, nil
}

type dedupKey struct{ subject, fromEmail, date string }

type fakeRecorder struct {
	existing map[dedupKey]bool
	saved    []*store.Record
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{existing: make(map[dedupKey]bool)}
}

func (f *fakeRecorder) Exists(subject, fromEmail, receivedDate string) (bool, error) {
	return f.existing[dedupKey{subject, fromEmail, receivedDate}], nil
}

func (f *fakeRecorder) Save(rec *store.Record) (int64, error) {
	f.saved = append(f.saved, rec)
	f.existing[dedupKey{rec.Subject, rec.FromEmail, rec.ReceivedDate}] = true
	return int64(len(f.saved)), nil
}

func testEmail(subject, date string) *types.Email {
	return &types.Email{
		From:    "Alice <alice@example.com>",
		Subject: subject,
		Date:    date,
		Body:    "<p>正文</p>",
		Text:    "正文",
	}
}

func testPipeline(conn *fakeConnector, analyzer *fakeAnalyzer, recorder *fakeRecorder) (*Pipeline, *[]time.Duration) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var sleeps []time.Duration
	p := &Pipeline{
		Mail:         conn,
		Analyzer:     analyzer,
		Store:        recorder,
		Logger:       logger,
		Mailbox:      "INBOX",
		DaysBack:     1,
		Template:     "all_in_one",
		Policy:       analysis.DefaultPolicy(),
		MessageDelay: 5 * time.Second,
		Sleep:        func(d time.Duration) { sleeps = append(sleeps, d) },
		Now:          func() time.Time { return time.Date(2025, 9, 2, 12, 0, 0, 0, time.UTC) },
	}
	return p, &sleeps
}

func TestRunHappyPath(t *testing.T) {
	conn := &fakeConnector{emails: []*types.Email{testEmail("s1", "d1")}}
	analyzer := &fakeAnalyzer{result: "### 邮件摘要\n\n- 主题: s1\n"}
	recorder := newFakeRecorder()
	p, sleeps := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()))

	assert.True(t, conn.loggedOut)
	require.NotNil(t, conn.criteria)
	assert.Equal(t, time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC), conn.criteria.Since)

	assert.Equal(t, []bool{true}, analyzer.withImages)
	require.Len(t, recorder.saved, 1)
	rec := recorder.saved[0]
	assert.Equal(t, "s1", rec.Subject)
	assert.Equal(t, "Alice", rec.FromName)
	assert.Equal(t, "alice@example.com", rec.FromEmail)
	assert.Equal(t, "d1", rec.ReceivedDate)
	assert.Equal(t, "<p>正文</p>", rec.RawBody, "the decoded body is persisted, not the extracted text")
	assert.Equal(t, "INBOX", rec.Mailbox)
	assert.Equal(t, analyzer.result, rec.AnalysisMarkdown)
	assert.Contains(t, rec.AnalysisJSON, "邮件摘要")

	assert.Equal(t, []time.Duration{5 * time.Second}, *sleeps, "processed messages are paced")
}

func TestRunConnectFailureAborts(t *testing.T) {
	conn := &fakeConnector{connectErr: errors.New("refused")}
	p, _ := testPipeline(conn, &fakeAnalyzer{}, newFakeRecorder())

	err := p.Run(context.Background())
	assert.Error(t, err)
	assert.False(t, conn.loggedOut)
}

func TestRunFetchFailureAborts(t *testing.T) {
	conn := &fakeConnector{fetchErr: errors.New("select failed")}
	p, _ := testPipeline(conn, &fakeAnalyzer{}, newFakeRecorder())

	assert.Error(t, p.Run(context.Background()))
	assert.True(t, conn.loggedOut, "logout still runs after a fetch failure")
}

func TestRetryTimeoutsThenSuccess(t *testing.T) {
	timeout := &analysis.CallError{Kind: analysis.KindTimeout, Err: errors.New("deadline")}
	conn := &fakeConnector{emails: []*types.Email{testEmail("s1", "d1")}}
	analyzer := &fakeAnalyzer{errs: []error{timeout, timeout}, result: "ok"}
	recorder := newFakeRecorder()
	p, sleeps := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []bool{true, true, true}, analyzer.withImages, "third attempt succeeds, no image-less fallback")
	require.Len(t, recorder.saved, 1)
	assert.Equal(t, "ok", recorder.saved[0].AnalysisMarkdown)
	assert.Equal(t, []time.Duration{20 * time.Second, 20 * time.Second, 5 * time.Second}, *sleeps)
}

func TestFallbackWithoutImages(t *testing.T) {
	failure := &analysis.CallError{Kind: analysis.KindOther, Err: errors.New("boom")}
	conn := &fakeConnector{emails: []*types.Email{testEmail("s1", "d1")}}
	analyzer := &fakeAnalyzer{errs: []error{failure, failure, failure}, result: "ok"}
	recorder := newFakeRecorder()
	p, sleeps := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []bool{true, true, true, false}, analyzer.withImages, "exactly one image-less fallback after exhausting retries")
	require.Len(t, recorder.saved, 1)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second}, *sleeps)
}

func TestMessageFailureContinuesRun(t *testing.T) {
	failure := &analysis.CallError{Kind: analysis.KindOther, Err: errors.New("boom")}
	conn := &fakeConnector{emails: []*types.Email{testEmail("s1", "d1"), testEmail("s2", "d2")}}
	analyzer := &fakeAnalyzer{errs: []error{failure, failure, failure, failure}, result: "ok"}
	recorder := newFakeRecorder()
	p, sleeps := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()), "a message failure does not fail the run")

	require.Len(t, recorder.saved, 1, "first message abandoned, second saved")
	assert.Equal(t, "s2", recorder.saved[0].Subject)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second}, *sleeps,
		"the abandoned message is not paced")
}

// A missing template would fail identically for every message, so the run
// aborts on the first occurrence instead of retrying per message.
func TestMissingTemplateAbortsRun(t *testing.T) {
	notFound := fmt.Errorf("%w: all_in_one", analysis.ErrTemplateNotFound)
	conn := &fakeConnector{emails: []*types.Email{testEmail("s1", "d1"), testEmail("s2", "d2")}}
	analyzer := &fakeAnalyzer{errs: []error{notFound, notFound}}
	recorder := newFakeRecorder()
	p, sleeps := testPipeline(conn, analyzer, recorder)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, analysis.ErrTemplateNotFound))

	assert.Equal(t, []bool{true}, analyzer.withImages, "no retries, no fallback, no second message")
	assert.Empty(t, recorder.saved)
	assert.Empty(t, *sleeps)
	assert.True(t, conn.loggedOut)
}

func TestDedupSkip(t *testing.T) {
	conn := &fakeConnector{emails: []*types.Email{testEmail("s1", "d1")}}
	analyzer := &fakeAnalyzer{result: "ok"}
	recorder := newFakeRecorder()
	recorder.existing[dedupKey{"s1", "alice@example.com", "d1"}] = true
	p, sleeps := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()))

	assert.Empty(t, analyzer.withImages, "skipped messages are never analyzed")
	assert.Empty(t, recorder.saved)
	assert.Empty(t, *sleeps, "skipped messages are not paced")
}

func TestDedupWithinOneRun(t *testing.T) {
	conn := &fakeConnector{emails: []*types.Email{
		testEmail("s1", "d1"),
		testEmail("s1", "d1"),
		testEmail("s1", "d1 "),
	}}
	analyzer := &fakeAnalyzer{result: "ok"}
	recorder := newFakeRecorder()
	p, _ := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, recorder.saved, 2, "exact duplicate skipped, near-duplicate date kept")
	assert.Equal(t, "d1", recorder.saved[0].ReceivedDate)
	assert.Equal(t, "d1 ", recorder.saved[1].ReceivedDate)
}

func TestRunNoMessages(t *testing.T) {
	conn := &fakeConnector{}
	analyzer := &fakeAnalyzer{}
	recorder := newFakeRecorder()
	p, sleeps := testPipeline(conn, analyzer, recorder)

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, analyzer.withImages)
	assert.Empty(t, *sleeps)
}
