package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lrhodin/chatdb/pkg/chatdb"
)

var pathCommand = &cli.Command{
	Name:   "path",
	Usage:  "Print the resolved chat database path",
	Action: runPath,
}

var messagesCommand = &cli.Command{
	Name:  "messages",
	Usage: "List messages, oldest first",
	Flags: []cli.Flag{
		&cli.Float64Flag{
			Name:    "after",
			Aliases: []string{"a"},
			Usage:   "Only messages with a date strictly after this Unix timestamp",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of messages (0 = unlimited)",
		},
	},
	Action: runMessages,
}

var messageCommand = &cli.Command{
	Name:      "message",
	Usage:     "Show one message with its handle, participants, and attachments",
	ArgsUsage: "<rowid>",
	Action:    runMessage,
}

var handlesCommand = &cli.Command{
	Name:   "handles",
	Usage:  "List all handles",
	Action: runHandles,
}

var handleCommand = &cli.Command{
	Name:      "handle",
	Usage:     "Show one handle",
	ArgsUsage: "<rowid>",
	Action:    runHandle,
}

var participantsCommand = &cli.Command{
	Name:      "participants",
	Usage:     "List the participants of a message's chat",
	ArgsUsage: "<message rowid>",
	Action:    runParticipants,
}

var attachmentsCommand = &cli.Command{
	Name:      "attachments",
	Usage:     "List a message's attachment metadata",
	ArgsUsage: "<message rowid>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "detect-mime",
			Usage: "Fill in missing MIME types from the local attachment files",
		},
	},
	Action: runAttachments,
}

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "Print new messages as they are stored",
	Flags: []cli.Flag{
		&cli.Float64Flag{
			Name:    "after",
			Aliases: []string{"a"},
			Usage:   "Start cursor as a Unix timestamp (default: now)",
		},
	},
	Action: runWatch,
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rowidArg(ctx *cli.Context) (int64, error) {
	if ctx.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one rowid argument")
	}
	rowid, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rowid %q: %w", ctx.Args().First(), err)
	}
	return rowid, nil
}

func runPath(ctx *cli.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Println(db.Path())
	return nil
}

func runMessages(ctx *cli.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := ctx.Int("limit")
	if !ctx.IsSet("limit") {
		limit = getConfig(ctx).DefaultLimit
	}
	messages, err := db.MessagesAfter(ctx.Context, ctx.Float64("after"), limit)
	if err != nil {
		return err
	}
	return printJSON(messages)
}

func runMessage(ctx *cli.Context) error {
	rowid, err := rowidArg(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	full, err := db.FullMessage(ctx.Context, rowid)
	if err != nil {
		return err
	}
	return printJSON(full)
}

func runHandles(ctx *cli.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	handles, err := db.AllHandles(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(handles)
}

func runHandle(ctx *cli.Context) error {
	rowid, err := rowidArg(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	handle, err := db.Handle(ctx.Context, rowid)
	if err != nil {
		return err
	}
	if handle == nil {
		return fmt.Errorf("handle %d not found", rowid)
	}
	return printJSON(handle)
}

func runParticipants(ctx *cli.Context) error {
	rowid, err := rowidArg(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	participants, err := db.Participants(ctx.Context, rowid)
	if err != nil {
		return err
	}
	return printJSON(participants)
}

func runAttachments(ctx *cli.Context) error {
	rowid, err := rowidArg(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	attachments, err := db.Attachments(ctx.Context, rowid)
	if err != nil {
		return err
	}
	if ctx.Bool("detect-mime") {
		resolver, err := chatdb.NewAttachmentResolver(getConfig(ctx).AttachmentsRoot, getLogger(ctx))
		if err != nil {
			return err
		}
		for _, att := range attachments {
			if mime := resolver.DetectMimeType(att); mime != "" && att.MimeType == nil {
				att.MimeType = &mime
			}
		}
	}
	return printJSON(attachments)
}

func runWatch(ctx *cli.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	after := ctx.Float64("after")
	if !ctx.IsSet("after") {
		after = nowUnix()
	}
	watcher, err := db.Watch(after)
	if err != nil {
		return err
	}
	defer watcher.Close()

	log := getLogger(ctx)
	log.Info().Float64("after", after).Msg("Watching for new messages")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case batch, ok := <-watcher.Messages():
			if !ok {
				return nil
			}
			for _, msg := range batch {
				if err = printJSON(msg); err != nil {
					return err
				}
			}
		case err := <-watcher.Errors():
			log.Warn().Err(err).Msg("Watch error")
		case <-sigs:
			return nil
		}
	}
}
