// counterctl is a small operator CLI for manual counter-context repair
// and debugging: create, update, diff, merge, and total a context
// stored as a local file. It intentionally does not talk to a
// cluster; wiring it to real replicas is the deployment's job, not
// this tool's.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kettlelakes/wideframe/usecases/countercontext"
)

// Options represents counterctl's command line options.
type Options struct {
	Command   string `long:"command" description:"one of: create, update, diff, merge, total, string" required:"true"`
	File      string `long:"file" description:"path to the counter context this command reads and, for create/update/merge, writes" default:"counter.ctx"`
	OtherFile string `long:"other-file" description:"second context file, for diff and merge"`
	Node      string `long:"node" description:"node IP address to credit, for update"`
	Delta     int64  `long:"delta" description:"count delta to apply to --node, for update" default:"1"`
}

func main() {
	var opts Options
	log := logrus.WithFields(logrus.Fields{"app": "counterctl"}).Logger

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1) // go-flags has already printed usage
	}

	engine, err := countercontext.Default()
	if err != nil {
		log.WithError(err).Fatal("failed to resolve local node id")
	}

	if err := run(log, engine, opts); err != nil {
		log.WithError(err).Fatal("counterctl: command failed")
	}
}

func run(log *logrus.Logger, engine *countercontext.Engine, opts Options) error {
	switch opts.Command {
	case "create":
		return writeContext(opts.File, engine.Create())

	case "update":
		if opts.Node == "" {
			return errors.New("--node is required for update")
		}
		node := net.ParseIP(opts.Node)
		if node == nil {
			return errors.Errorf("--node %q is not a valid IP address", opts.Node)
		}
		ctx, err := readContext(opts.File)
		if err != nil {
			return err
		}
		updated, err := engine.Update(ctx, node, opts.Delta)
		if err != nil {
			return errors.Wrap(err, "update")
		}
		log.WithFields(logrus.Fields{"node": opts.Node, "delta": opts.Delta}).Info("counterctl: updated context")
		return writeContext(opts.File, updated)

	case "diff":
		left, right, err := readPair(opts.File, opts.OtherFile)
		if err != nil {
			return err
		}
		rel, err := engine.Diff(left, right)
		if err != nil {
			return errors.Wrap(err, "diff")
		}
		fmt.Println(rel.String())
		return nil

	case "merge":
		left, right, err := readPair(opts.File, opts.OtherFile)
		if err != nil {
			return err
		}
		merged, err := engine.Merge(left, right)
		if err != nil {
			return errors.Wrap(err, "merge")
		}
		log.Info("counterctl: merged contexts")
		return writeContext(opts.File, merged)

	case "total":
		ctx, err := readContext(opts.File)
		if err != nil {
			return err
		}
		total, err := engine.Total(ctx)
		if err != nil {
			return errors.Wrap(err, "total")
		}
		fmt.Println(total)
		return nil

	case "string":
		ctx, err := readContext(opts.File)
		if err != nil {
			return err
		}
		fmt.Println(engine.String(ctx))
		return nil

	default:
		return errors.Errorf("unknown --command %q", opts.Command)
	}
}

func readContext(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading context %s", path)
	}
	return b, nil
}

func readPair(leftPath, rightPath string) (left, right []byte, err error) {
	if rightPath == "" {
		return nil, nil, errors.New("--other-file is required for this command")
	}
	if left, err = readContext(leftPath); err != nil {
		return nil, nil, err
	}
	if right, err = readContext(rightPath); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func writeContext(path string, ctx []byte) error {
	if err := os.WriteFile(path, ctx, 0o644); err != nil {
		return errors.Wrapf(err, "writing context %s", path)
	}
	return nil
}
