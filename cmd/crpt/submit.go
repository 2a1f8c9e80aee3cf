package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"crpt-gateway/crpt"
	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type submitCmd struct {
	file        string
	signature   string
	baseURL     string
	window      time.Duration
	limit       int
	concurrency int
	verbose     bool
}

func (*submitCmd) Name() string     { return "submit" }
func (*submitCmd) Synopsis() string { return "submit documents to the CRPT API under a fixed-window rate limit" }
func (*submitCmd) Usage() string {
	return "submit -signature SIG [-file docs.json] [-window 1m] [-limit 10] [-concurrency 4]\n" +
		"  Reads one document or a JSON array of documents (stdin when -file is empty or -).\n"
}

func (s *submitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.file, "file", "", "documents JSON file (default stdin)")
	f.StringVar(&s.file, "f", "", "documents JSON file (default stdin)")
	f.StringVar(&s.signature, "signature", os.Getenv("CRPT_SIGNATURE"), "document signature (default $CRPT_SIGNATURE)")
	f.StringVar(&s.baseURL, "base-url", crpt.DefaultBaseURL, "CRPT API base URL")
	f.DurationVar(&s.window, "window", time.Minute, "rate limit window")
	f.IntVar(&s.limit, "limit", 10, "max requests per window")
	f.IntVar(&s.concurrency, "concurrency", 4, "concurrent submissions")
	f.BoolVar(&s.verbose, "v", false, "debug logging")
}

func (s *submitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	log := logrus.New()
	if s.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if s.signature == "" {
		fmt.Fprintln(os.Stderr, "no signature provided.")
		return subcommands.ExitUsageError
	}

	limiter, err := infra.NewFixedWindow(s.window, s.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	defer limiter.Close()

	docs, err := s.readDocuments()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	client, err := crpt.NewClient(limiter, crpt.WithBaseURL(s.baseURL), crpt.WithLogger(log))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	res, err := submitAll(ctx, client, docs, s.signature, s.concurrency, log)
	log.WithFields(logrus.Fields{"submitted": res.Submitted, "failed": res.Failed, "total": len(docs)}).Info("done")
	if err != nil {
		log.WithError(err).Error("submission aborted")
		return subcommands.ExitFailure
	}
	if res.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (s *submitCmd) readDocuments() ([]crpt.Document, error) {
	var r io.Reader = os.Stdin
	if s.file != "" && s.file != "-" {
		f, err := os.Open(s.file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return crpt.ReadDocuments(r)
}

type submitResult struct {
	Submitted int64
	Failed    int64
}

// documentCreator é o que submitAll precisa de *crpt.Client.
type documentCreator interface {
	CreateDocument(ctx context.Context, doc *crpt.Document, signature string) error
}

// submitAll envia todos os documentos. Falhas da API são contadas e logadas;
// erros do limiter (interrupção ou fechamento) abortam o lote.
func submitAll(
	ctx context.Context,
	client documentCreator,
	docs []crpt.Document,
	signature string,
	concurrency int,
	log logrus.FieldLogger,
) (submitResult, error) {
	var submitted, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i := range docs {
		doc := &docs[i]
		g.Go(func() error {
			err := client.CreateDocument(ctx, doc, signature)
			switch {
			case err == nil:
				submitted.Add(1)
				return nil
			case domain.IsInterrupted(err), domain.IsCancelled(err):
				return err
			default:
				failed.Add(1)
				log.WithError(err).WithField("doc_id", doc.DocID).Warn("document rejected")
				return nil
			}
		})
	}
	err := g.Wait()
	return submitResult{Submitted: submitted.Load(), Failed: failed.Load()}, err
}
