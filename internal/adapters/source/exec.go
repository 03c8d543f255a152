package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/target/jobtracker/internal/util"
)

// Defaults for the remote queue drain command.
const (
	DefaultSSHBinary      = "ssh"
	DefaultConnectTimeout = 10 * time.Second
	DefaultBatchSize      = 100
	DefaultStrictHostKeys = "accept-new"
)

// ExecFetcherOptions configures an ExecFetcher.
type ExecFetcherOptions struct {
	Binary         string             // Optional: defaults to DefaultSSHBinary
	ConnectTimeout time.Duration      // Optional: defaults to DefaultConnectTimeout
	BatchSize      int                // Optional: records removed per drain, defaults to DefaultBatchSize
	StrictHostKeys string             // Optional: ssh StrictHostKeyChecking, defaults to DefaultStrictHostKeys
	Runner         util.CommandRunner // Optional: defaults to util.RunCommand
}

// ExecFetcher drains a host queue by running the queue handler over ssh.
// The handler prints the removed records as a JSON array.
type ExecFetcher struct {
	binary         string
	connectTimeout time.Duration
	batchSize      int
	strictHostKeys string
	run            util.CommandRunner
}

var _ HostFetcher = (*ExecFetcher)(nil)

// NewExecFetcher constructs an ExecFetcher.
func NewExecFetcher(opts ExecFetcherOptions) *ExecFetcher {
	f := &ExecFetcher{
		binary:         opts.Binary,
		connectTimeout: opts.ConnectTimeout,
		batchSize:      opts.BatchSize,
		strictHostKeys: opts.StrictHostKeys,
		run:            opts.Runner,
	}
	if f.binary == "" {
		f.binary = DefaultSSHBinary
	}
	if f.connectTimeout <= 0 {
		f.connectTimeout = DefaultConnectTimeout
	}
	if f.batchSize <= 0 {
		f.batchSize = DefaultBatchSize
	}
	if f.strictHostKeys == "" {
		f.strictHostKeys = DefaultStrictHostKeys
	}
	if f.run == nil {
		f.run = util.RunCommand
	}
	return f
}

// Fetch runs the drain command on host.
func (f *ExecFetcher) Fetch(ctx context.Context, host Host) ([]json.RawMessage, error) {
	if host.Name == "" {
		return nil, errors.New("host name is required")
	}
	out, err := f.run(ctx, f.binary, f.Args(host)...)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(out)) == "" {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("decode queue output: %w", err)
	}
	return records, nil
}

// Args returns the ssh arguments used to drain host.
func (f *ExecFetcher) Args(host Host) []string {
	args := make([]string, 0, 11)
	if host.KeyFile != "" {
		args = append(args, "-i", host.KeyFile)
	}
	args = append(args,
		"-x",
		"-o", "ConnectTimeout="+strconv.Itoa(int(f.connectTimeout/time.Second)),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking="+f.strictHostKeys,
		host.String(),
		f.remoteCommand(host),
	)
	return args
}

func (f *ExecFetcher) remoteCommand(host Host) string {
	return fmt.Sprintf("%s -f %s remove -t EPOCHE -i %d", host.QueueHandler, host.Queue, f.batchSize)
}
