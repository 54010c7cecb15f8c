package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"finalword/internal/config"
	"finalword/internal/dispatch"
	"finalword/internal/model"
	"finalword/internal/query"
	"finalword/internal/schedule"
)

type backend interface {
	Controller() *schedule.Controller
	Query() *query.Service
	RunDispatch(ctx context.Context) (dispatch.Report, error)
}

type usageError string

func (e usageError) Error() string { return string(e) }

func usagef(format string, args ...any) error { return usageError(fmt.Sprintf(format, args...)) }

// run executes one non-serve command and prints its result as JSON.
func run(ctx context.Context, b backend, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usagef("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		// Opening the store already applied the schema.
		_, err := fmt.Fprintln(out, "schema up to date")
		return err
	case "dispatch":
		rep, err := b.RunDispatch(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, rep)
	case "user":
		return runUser(ctx, b, rest, out)
	case "checkin":
		return runCheckin(ctx, b, rest, out)
	case "message":
		return runMessage(ctx, b, rest, out)
	case "stats":
		fs := newFlagSet("stats")
		user := fs.Int64("user", 0, "user id")
		if err := parse(fs, rest); err != nil {
			return err
		}
		st, err := b.Query().Stats(ctx, *user)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	case "activity":
		fs := newFlagSet("activity")
		user := fs.Int64("user", 0, "user id")
		order := fs.String("order", "", "comma-separated ordering, e.g. -timestamp")
		limit := fs.Int("limit", 0, "page size")
		offset := fs.Int("offset", 0, "page offset")
		if err := parse(fs, rest); err != nil {
			return err
		}
		rows, err := b.Query().Activity(ctx, *user, query.ActivityQuery{
			Ordering: splitList(*order), Limit: *limit, Offset: *offset,
		})
		if err != nil {
			return err
		}
		return printJSON(out, rows)
	default:
		return usagef("unknown command %q", cmd)
	}
}

func runUser(ctx context.Context, b backend, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usagef("user: missing subcommand (add, interval)")
	}
	switch args[0] {
	case "add":
		fs := newFlagSet("user add")
		email := fs.String("email", "", "email address")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		interval := fs.Int("interval", 0, "check-in interval in days")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		u, err := b.Controller().CreateUser(ctx, schedule.UserInput{
			Email: *email, FirstName: *first, LastName: *last, Interval: *interval,
		})
		if err != nil {
			return err
		}
		return printJSON(out, u)
	case "interval":
		fs := newFlagSet("user interval")
		user := fs.Int64("user", 0, "user id")
		days := fs.Int("days", -1, "new interval in days")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		u, err := b.Controller().SetInterval(ctx, *user, *days)
		if err != nil {
			return err
		}
		return printJSON(out, u)
	default:
		return usagef("user: unknown subcommand %q", args[0])
	}
}

func runCheckin(ctx context.Context, b backend, args []string, out io.Writer) error {
	fs := newFlagSet("checkin")
	user := fs.Int64("user", 0, "user id")
	silent := fs.Bool("silent", false, "reset schedules without an activity entry")
	if err := parse(fs, args); err != nil {
		return err
	}
	res, err := b.Controller().CheckIn(ctx, *user, schedule.CheckinOptions{Silent: *silent})
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{"at": res.At, "reset": res.Reset})
}

func runMessage(ctx context.Context, b backend, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usagef("message: missing subcommand")
	}
	sub, rest := args[0], args[1:]
	fs := newFlagSet("message " + sub)
	id := fs.Int64("id", 0, "message id")
	user := fs.Int64("user", 0, "user id")
	file := fs.String("f", "", "message file (yaml or json)")
	typ := fs.String("type", "", "FINAL_WORD or TIME_CAPSULE")
	search := fs.String("search", "", "substring of recipients or subject")
	order := fs.String("order", "", "comma-separated ordering, e.g. -scheduled_at,subject")
	limit := fs.Int("limit", 0, "page size")
	offset := fs.Int("offset", 0, "page offset")
	if err := parse(fs, rest); err != nil {
		return err
	}

	ctl := b.Controller()
	switch sub {
	case "create":
		var mf messageFile
		if err := readMessageFile(*file, &mf); err != nil {
			return err
		}
		in := mf.input()
		if *user != 0 {
			in.UserID = *user
		}
		m, job, err := ctl.CreateMessage(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"message": m, "due_at": job.DueAt})
	case "update":
		if *id == 0 {
			return usagef("message update: -id is required")
		}
		var pf patchFile
		if err := readMessageFile(*file, &pf); err != nil {
			return err
		}
		m, err := ctl.UpdateMessage(ctx, *id, pf.patch())
		if err != nil {
			return err
		}
		return printJSON(out, m)
	case "delete":
		if *id == 0 {
			return usagef("message delete: -id is required")
		}
		if err := ctl.DeleteMessage(ctx, *id); err != nil {
			return err
		}
		return printJSON(out, map[string]any{"deleted": *id})
	case "resend":
		if *id == 0 {
			return usagef("message resend: -id is required")
		}
		job, err := ctl.Resend(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"message_id": *id, "due_at": job.DueAt})
	case "list":
		msgs, err := b.Query().Messages(ctx, *user, query.MessageQuery{
			Type:     model.MessageType(strings.ToUpper(strings.TrimSpace(*typ))),
			Search:   *search,
			Ordering: splitList(*order),
			Limit:    *limit,
			Offset:   *offset,
		})
		if err != nil {
			return err
		}
		return printJSON(out, msgs)
	case "show":
		m, err := b.Query().Message(ctx, *user, *id)
		if err != nil {
			return err
		}
		return printJSON(out, m)
	default:
		return usagef("message: unknown subcommand %q", sub)
	}
}

// messageFile is the on-disk form accepted by "message create -f".
type messageFile struct {
	UserID      int64      `json:"user_id"`
	Type        string     `json:"type"`
	Recipients  []string   `json:"recipients"`
	Subject     string     `json:"subject"`
	Text        string     `json:"text"`
	Delay       *int       `json:"delay"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (f messageFile) input() schedule.MessageInput {
	return schedule.MessageInput{
		UserID:      f.UserID,
		Type:        model.MessageType(strings.ToUpper(strings.TrimSpace(f.Type))),
		Recipients:  f.Recipients,
		Subject:     f.Subject,
		Text:        f.Text,
		Delay:       f.Delay,
		ScheduledAt: f.ScheduledAt,
	}
}

// patchFile is the on-disk form accepted by "message update -f". Absent
// keys leave the field unchanged.
type patchFile struct {
	Type        *string    `json:"type"`
	Recipients  *[]string  `json:"recipients"`
	Subject     *string    `json:"subject"`
	Text        *string    `json:"text"`
	Delay       *int       `json:"delay"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (f patchFile) patch() schedule.MessagePatch {
	p := schedule.MessagePatch{
		Recipients:  f.Recipients,
		Subject:     f.Subject,
		Text:        f.Text,
		Delay:       f.Delay,
		ScheduledAt: f.ScheduledAt,
	}
	if f.Type != nil {
		t := model.MessageType(strings.ToUpper(strings.TrimSpace(*f.Type)))
		p.Type = &t
	}
	return p
}

func readMessageFile(path string, v any) error {
	if strings.TrimSpace(path) == "" {
		return usagef("-f is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
		path = "stdin.yaml"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if err := config.DecodeStrict(path, data, v); err != nil {
		return model.Wrap(model.CodeInvalidArgument, "invalid message file", err)
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usagef("%s: %v", fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return usagef("%s: unexpected arguments %v", fs.Name(), fs.Args())
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
