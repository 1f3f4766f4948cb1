package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/francaflow/flow-go/internal/relayclient"
	"github.com/francaflow/flow-go/internal/upload"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <file>...",
		Short: "Upload a batch of files for a client",
		Long: `Upload one or more local files to a client's folder through a flow-go server.

The client is given either by its directory code (--code) or by name and
category (--client, --category). Small batches go in a single request; larger
ones are sent file by file in resumable chunks, recovering from dropped
chunks by asking the session how many bytes it holds. The team is notified
once the whole batch is stored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSend,
	}

	cmd.Flags().String("server", "", "server base URL (overrides [server] url)")
	cmd.Flags().String("code", "", "client code from the client directory")
	cmd.Flags().String("client", "", "client name")
	cmd.Flags().String("category", "", "client category")
	cmd.Flags().String("type", upload.MaterialCreatives, "material type: anuncios or materiais")
	cmd.Flags().String("description", "", "optional description; becomes a subfolder")
	cmd.MarkFlagsMutuallyExclusive("code", "client")
	cmd.MarkFlagsMutuallyExclusive("code", "category")

	return cmd
}

// sendOutput is the JSON form of a completed batch.
type sendOutput struct {
	BatchID    string           `json:"batch_id"`
	Direct     bool             `json:"direct"`
	FolderLink string           `json:"folder_link"`
	TotalBytes int64            `json:"total_bytes"`
	Notified   bool             `json:"notified"`
	Files      []sendFileOutput `json:"files"`
}

type sendFileOutput struct {
	Name        string `json:"name"`
	FileID      string `json:"file_id"`
	WebViewLink string `json:"web_view_link,omitempty"`
	Size        int64  `json:"size"`
}

func runSend(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	ctx := shutdownContext(cmd.Context(), logger)

	timeouts, err := cc.Cfg.Timeouts()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rc := relayclient.New(cc.Cfg.Server.URL, newHTTPClient(timeouts), logger)

	dest, err := sendDestination(ctx, cmd, rc)
	if err != nil {
		return err
	}

	limits, err := rc.Limits(ctx)
	if err != nil {
		return err
	}

	files, closeFiles, err := openBatch(args)
	if err != nil {
		return err
	}
	defer closeFiles()

	chunkTimeout := timeouts.Chunk
	if chunkTimeout == 0 {
		chunkTimeout = -1
	}

	seq := upload.NewSequencer(rc, upload.SequencerConfig{
		ChunkSize:    limits.ChunkSize,
		MaxProbes:    cc.Cfg.Transfers.MaxProbes,
		ChunkTimeout: chunkTimeout,
	}, logger)

	orch := upload.NewOrchestrator(upload.OrchestratorDeps{
		Initiator: rc,
		Sender:    seq,
		Direct:    rc,
		Notifier:  rc,
	}, upload.Limits{
		MaxFileSize:     limits.MaxFileSize,
		MaxBatchSize:    limits.MaxBatchSize,
		DirectThreshold: limits.DirectThreshold,
	}, logger)

	progress := newProgressPrinter(os.Stderr, cc.Flags.Quiet || cc.Flags.JSON)

	res, err := orch.SendBatch(ctx, files, dest, progress.update)
	progress.done()

	if err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	logger.Debug("batch sent",
		slog.String("batch_id", res.BatchID),
		slog.Bool("direct", res.Direct),
	)

	if cc.Flags.JSON {
		return printSendJSON(os.Stdout, res)
	}

	cc.Statusf("Sent %d file(s), %s, to %s / %s\n",
		len(res.Files), formatSize(res.TotalBytes), dest.ClientName, dest.MaterialType)

	if res.FolderLink != "" {
		fmt.Fprintln(os.Stdout, res.FolderLink)
	}

	if !res.Notified {
		cc.Statusf("Warning: the team was not notified\n")
	}

	return nil
}

// sendDestination builds the batch destination from flags, resolving --code
// through the server's client directory.
func sendDestination(ctx context.Context, cmd *cobra.Command, rc *relayclient.Client) (upload.Destination, error) {
	code, _ := cmd.Flags().GetString("code")
	name, _ := cmd.Flags().GetString("client")
	category, _ := cmd.Flags().GetString("category")
	material, _ := cmd.Flags().GetString("type")
	description, _ := cmd.Flags().GetString("description")

	if code != "" {
		found, err := rc.LookupClient(ctx, code)
		if err != nil {
			if errors.Is(err, relayclient.ErrNotFound) {
				return upload.Destination{}, fmt.Errorf("unknown client code %q", code)
			}

			return upload.Destination{}, err
		}

		name, category = found.Name, found.Category
	}

	if name == "" || category == "" {
		return upload.Destination{}, errors.New("either --code or both --client and --category are required")
	}

	dest := upload.Destination{
		ClientName:   name,
		Category:     category,
		MaterialType: materialType(material),
		Description:  description,
	}

	return dest, dest.Validate()
}

// materialType accepts the ASCII spellings of the two material types.
func materialType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anuncios", "anúncios", "ads":
		return upload.MaterialAds
	case "materiais", "creatives":
		return upload.MaterialCreatives
	default:
		return s
	}
}

// openBatch opens every path as a batch file. The returned func closes them.
func openBatch(paths []string) ([]upload.File, func(), error) {
	var (
		files  []upload.File
		opened []*os.File
	)

	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		opened = append(opened, f)

		info, err := f.Stat()
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		if info.IsDir() {
			closeAll()
			return nil, nil, fmt.Errorf("%s is a directory", p)
		}

		files = append(files, upload.File{
			Name:     filepath.Base(p),
			MimeType: detectMimeType(p),
			Size:     info.Size(),
			Content:  f,
		})
	}

	return files, closeAll, nil
}

func detectMimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}

	return "application/octet-stream"
}

func printSendJSON(w io.Writer, res *upload.BatchResult) error {
	out := sendOutput{
		BatchID:    res.BatchID,
		Direct:     res.Direct,
		FolderLink: res.FolderLink,
		TotalBytes: res.TotalBytes,
		Notified:   res.Notified,
		Files:      make([]sendFileOutput, 0, len(res.Files)),
	}

	for _, f := range res.Files {
		out.Files = append(out.Files, sendFileOutput(f))
	}

	return printJSON(w, out)
}

// progressPrinter renders aggregate batch progress on one terminal line,
// redrawing only when the percentage changes.
type progressPrinter struct {
	w       io.Writer
	silent  bool
	last    int
	printed bool
}

func newProgressPrinter(w io.Writer, silent bool) *progressPrinter {
	return &progressPrinter{w: w, silent: silent, last: -1}
}

func (p *progressPrinter) update(pr upload.Progress) {
	if p.silent || pr.Percentage == p.last {
		return
	}

	p.last = pr.Percentage
	p.printed = true
	fmt.Fprintf(p.w, "\rUploading: %3d%% (%s / %s)", pr.Percentage, formatSize(pr.Loaded), formatSize(pr.Total))
}

func (p *progressPrinter) done() {
	if p.printed {
		fmt.Fprintln(p.w)
	}
}
