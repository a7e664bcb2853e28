// Package dropbox stages donated eSIM images from a Dropbox folder tree:
// it lists, downloads and batch-deletes files, polling the asynchronous
// delete job to completion.
package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	sdk "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/async"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

// filesAPI is the subset of files.Client the stager calls.
type filesAPI interface {
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	DeleteBatch(arg *files.DeleteBatchArg) (*files.DeleteBatchLaunch, error)
	DeleteBatchCheck(arg *async.PollArg) (*files.DeleteBatchJobStatus, error)
}

// File is one staged file.
type File struct {
	Name string
	Path string
	Size uint64
}

type Stager struct {
	api          filesAPI
	log          logging.Logger
	pollInterval time.Duration
	maxPolls     int
}

func New(token string, log logging.Logger) *Stager {
	return &Stager{
		api:          files.New(sdk.Config{Token: token, LogLevel: sdk.LogOff}),
		log:          log,
		pollInterval: 2 * time.Second,
		maxPolls:     30,
	}
}

// List returns the files directly under folder. A missing folder yields
// no files and no error.
func (s *Stager) List(ctx context.Context, folder string) ([]File, error) {
	res, err := s.api.ListFolder(files.NewListFolderArg(folder))
	if err != nil {
		werr := wrap("list", folder, err)
		if IsKind(werr, KindNotFound) {
			s.log.Warn(ctx, "dropbox: folder not found", "folder", folder)
			return nil, nil
		}
		return nil, werr
	}

	var out []File
	for {
		for _, e := range res.Entries {
			if f, ok := e.(*files.FileMetadata); ok {
				out = append(out, File{Name: f.Name, Path: f.PathDisplay, Size: f.Size})
			}
		}
		if !res.HasMore {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err = s.api.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, wrap("list", folder, err)
		}
	}
}

// Download returns the content of the file at p.
func (s *Stager) Download(ctx context.Context, p string) ([]byte, error) {
	meta, body, err := s.api.Download(files.NewDownloadArg(p))
	if err != nil {
		return nil, wrap("download", p, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &Error{Kind: KindAPI, Op: "download", Path: p, Err: err}
	}
	s.log.Debug(ctx, "dropbox: downloaded", "name", meta.Name, "bytes", len(data))
	return data, nil
}

// DeleteBatch removes paths in one asynchronous job and waits for it.
func (s *Stager) DeleteBatch(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := make([]*files.DeleteArg, len(paths))
	for i, p := range paths {
		args[i] = files.NewDeleteArg(p)
	}

	launch, err := s.api.DeleteBatch(files.NewDeleteBatchArg(args))
	if err != nil {
		return wrap("delete batch", "", err)
	}
	s.log.Info(ctx, "dropbox: delete initiated", "files", len(paths))

	switch launch.Tag {
	case "complete":
		return nil
	case "async_job_id":
		return s.await(ctx, launch.AsyncJobId)
	default:
		return &Error{Kind: KindAPI, Op: "delete batch", Err: fmt.Errorf("unexpected launch tag %q", launch.Tag)}
	}
}

func (s *Stager) await(ctx context.Context, jobID string) error {
	for i := 0; i < s.maxPolls; i++ {
		status, err := s.api.DeleteBatchCheck(async.NewPollArg(jobID))
		if err != nil {
			return wrap("delete check", "", err)
		}
		switch status.Tag {
		case "complete":
			return nil
		case "failed":
			return &Error{Kind: KindJobFailed, Op: "delete check", Err: fmt.Errorf("job %s failed", jobID)}
		}

		select {
		case <-time.After(s.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &Error{Kind: KindJobTimeout, Op: "delete check", Err: fmt.Errorf("job %s still running after %d polls", jobID, s.maxPolls)}
}

// ProviderFolder is the staging folder of one provider under root.
func ProviderFolder(root, provider string) string {
	return path.Join("/", root, provider)
}

var errEmptyToken = errors.New("empty access token")
