package dropbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/async"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

type fakeFiles struct {
	pages    []*files.ListFolderResult
	listErr  error
	content  map[string][]byte
	launch   *files.DeleteBatchLaunch
	statuses []string
	checks   int
	deleted  []string
}

func (f *fakeFiles) ListFolder(*files.ListFolderArg) (*files.ListFolderResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pages[0], nil
}

func (f *fakeFiles) ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	for i, p := range f.pages {
		if p.Cursor == arg.Cursor {
			return f.pages[i+1], nil
		}
	}
	return nil, errors.New("reset/")
}

func (f *fakeFiles) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	data, ok := f.content[arg.Path]
	if !ok {
		return nil, nil, errors.New("path/not_found/.")
	}
	meta := &files.FileMetadata{}
	meta.Name = arg.Path
	return meta, io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFiles) DeleteBatch(arg *files.DeleteBatchArg) (*files.DeleteBatchLaunch, error) {
	for _, e := range arg.Entries {
		f.deleted = append(f.deleted, e.Path)
	}
	return f.launch, nil
}

func (f *fakeFiles) DeleteBatchCheck(arg *async.PollArg) (*files.DeleteBatchJobStatus, error) {
	st := &files.DeleteBatchJobStatus{}
	st.Tag = f.statuses[min(f.checks, len(f.statuses)-1)]
	f.checks++
	return st, nil
}

func file(name string) *files.FileMetadata {
	m := &files.FileMetadata{Size: 10}
	m.Name = name
	m.PathDisplay = "/esims/We/" + name
	return m
}

func newStager(f *fakeFiles) *Stager {
	return &Stager{api: f, log: logging.NewNopLogger(), pollInterval: time.Millisecond, maxPolls: 3}
}

func TestList_FollowsCursor(t *testing.T) {
	f := &fakeFiles{pages: []*files.ListFolderResult{
		{Entries: []files.IsMetadata{file("a.png"), &files.FolderMetadata{}}, HasMore: true, Cursor: "c1"},
		{Entries: []files.IsMetadata{file("b.png")}},
	}}

	got, err := newStager(f).List(context.Background(), "/esims/We")
	require.NoError(t, err)
	assert.Equal(t, []File{
		{Name: "a.png", Path: "/esims/We/a.png", Size: 10},
		{Name: "b.png", Path: "/esims/We/b.png", Size: 10},
	}, got)
}

func TestList_MissingFolderIsEmpty(t *testing.T) {
	f := &fakeFiles{listErr: errors.New("path/not_found/..")}
	got, err := newStager(f).List(context.Background(), "/esims/Nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_AuthError(t *testing.T) {
	f := &fakeFiles{listErr: errors.New("expired_access_token/")}
	_, err := newStager(f).List(context.Background(), "/esims")
	assert.True(t, IsKind(err, KindAuth))
	assert.ErrorContains(t, err, "dropbox list /esims: auth")
}

func TestDownload(t *testing.T) {
	f := &fakeFiles{content: map[string][]byte{"/esims/We/a.png": []byte("png")}}
	s := newStager(f)

	data, err := s.Download(context.Background(), "/esims/We/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = s.Download(context.Background(), "/esims/We/gone.png")
	assert.True(t, IsKind(err, KindNotFound))
}

func launch(tag, job string) *files.DeleteBatchLaunch {
	l := &files.DeleteBatchLaunch{AsyncJobId: job}
	l.Tag = tag
	return l
}

func TestDeleteBatch_PollsUntilComplete(t *testing.T) {
	f := &fakeFiles{launch: launch("async_job_id", "job-1"), statuses: []string{"in_progress", "complete"}}

	require.NoError(t, newStager(f).DeleteBatch(context.Background(), []string{"/a", "/b"}))
	assert.Equal(t, []string{"/a", "/b"}, f.deleted)
	assert.Equal(t, 2, f.checks)
}

func TestDeleteBatch_CompleteImmediately(t *testing.T) {
	f := &fakeFiles{launch: launch("complete", "")}
	require.NoError(t, newStager(f).DeleteBatch(context.Background(), []string{"/a"}))
	assert.Zero(t, f.checks)
}

func TestDeleteBatch_JobFailed(t *testing.T) {
	f := &fakeFiles{launch: launch("async_job_id", "job-2"), statuses: []string{"failed"}}
	err := newStager(f).DeleteBatch(context.Background(), []string{"/a"})
	assert.True(t, IsKind(err, KindJobFailed))
}

func TestDeleteBatch_JobTimeout(t *testing.T) {
	f := &fakeFiles{launch: launch("async_job_id", "job-3"), statuses: []string{"in_progress"}}
	err := newStager(f).DeleteBatch(context.Background(), []string{"/a"})
	assert.True(t, IsKind(err, KindJobTimeout))
	assert.Equal(t, 3, f.checks)
}

func TestDeleteBatch_Empty(t *testing.T) {
	f := &fakeFiles{}
	require.NoError(t, newStager(f).DeleteBatch(context.Background(), nil))
	assert.Empty(t, f.deleted)
}

func TestProviderFolder(t *testing.T) {
	assert.Equal(t, "/esims/We", ProviderFolder("/esims", "We"))
	assert.Equal(t, "/esims/We", ProviderFolder("esims/", "We"))
}

func TestRefreshAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("refresh_token") != "rt" || r.PostForm.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"sl.new","expires_in":14400}`))
	}))
	defer srv.Close()

	tok, err := RefreshAccessToken(context.Background(), srv.Client(), srv.URL, App{Key: "k", Secret: "s", RefreshToken: "rt"})
	require.NoError(t, err)
	assert.Equal(t, "sl.new", tok)

	_, err = RefreshAccessToken(context.Background(), srv.Client(), srv.URL, App{RefreshToken: "bad"})
	assert.True(t, IsKind(err, KindAuth))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "job timeout", KindJobTimeout.String())
	assert.Equal(t, "api", KindAPI.String())
}
