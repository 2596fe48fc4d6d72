package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/transfer"
	"github.com/maheshrc27/skyqueue/pkg/utils"
	"github.com/urfave/cli"
)

var (
	identifier string
	password   string

	postText  string
	postDate  string
	postTimes cli.StringSlice
	postFiles cli.StringSlice
	postAlts  cli.StringSlice

	loginFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "identifier, u",
			Usage:       "handle or email of the account",
			EnvVar:      "BSKY_IDENTIFIER",
			Destination: &identifier,
		},
		cli.StringFlag{
			Name:        "password, p",
			Usage:       "app password (not the account password)",
			EnvVar:      "BSKY_APP_PASSWORD",
			Destination: &password,
		},
	}

	mediaFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "text, t",
			Usage:       "post text",
			Destination: &postText,
		},
		cli.StringSliceFlag{
			Name:  "file, f",
			Usage: "image or video to attach, up to 4",
			Value: &postFiles,
		},
		cli.StringSliceFlag{
			Name:  "alt, a",
			Usage: "alt text for the file at the same position",
			Value: &postAlts,
		},
	}

	postFlags = mediaFlags

	scheduleFlags = append([]cli.Flag{
		cli.StringFlag{
			Name:        "date, d",
			Usage:       "day to post on, YYYY-MM-DD",
			Destination: &postDate,
		},
		cli.StringSliceFlag{
			Name:  "time, at",
			Usage: "time of day (HH:MM, HHMM, HH), repeat or comma separate for several",
			Value: &postTimes,
		},
	}, mediaFlags...)
)

func login(c *cli.Context) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, ring, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.auth.Login(ctx, identifier, password)
	if err != nil {
		return err
	}
	fmt.Printf("skyqueue: logged in as @%s\n", session.Handle)
	return nil
}

func schedule(c *cli.Context) error {
	ctx := context.Background()

	var times []string
	for _, v := range postTimes {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				times = append(times, t)
			}
		}
	}
	if postDate == "" || len(times) == 0 {
		return cli.NewExitError("skyqueue: --date and at least one --time are required", 1)
	}

	uploads, err := readUploads(postFiles, postAlts)
	if err != nil {
		return err
	}
	if strings.TrimSpace(postText) == "" && len(uploads) == 0 {
		return cli.NewExitError("skyqueue: nothing to post, give --text or --file", 1)
	}

	rt, err := newRuntime(ctx, cfg, ring, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	media, err := rt.posts.PrepareMedia(ctx, uploads)
	if err != nil {
		return err
	}
	created, err := rt.queue.Schedule(ctx, postText, media, postDate, times)
	if err != nil {
		rt.posts.ReleaseMedia(ctx, media)
		return err
	}

	fmt.Printf("skyqueue: %d post(s) queued\n", created)
	return nil
}

func postNow(c *cli.Context) error {
	ctx := context.Background()

	uploads, err := readUploads(postFiles, postAlts)
	if err != nil {
		return err
	}
	if strings.TrimSpace(postText) == "" && len(uploads) == 0 {
		return cli.NewExitError("skyqueue: nothing to post, give --text or --file", 1)
	}

	rt, err := newRuntime(ctx, cfg, ring, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	ref, err := rt.posts.PostNow(ctx, postText, uploads)
	if err != nil {
		return err
	}
	fmt.Printf("skyqueue: published %s\n", ref.URI)
	return nil
}

func list(c *cli.Context) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, ring, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	posts, err := rt.queue.List(ctx)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Println("skyqueue: queue is empty")
		return nil
	}
	printQueue(os.Stdout, posts)
	return nil
}

func printQueue(w io.Writer, posts []models.ScheduledPost) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\t\tMEDIA\tTEXT")
	for _, p := range posts {
		size := 0
		for _, m := range p.MediaRaw {
			size += utils.DataURLSize(m.Payload)
		}
		media := "-"
		if len(p.MediaRaw) > 0 {
			media = fmt.Sprintf("%d (%s)", len(p.MediaRaw), humanize.Bytes(uint64(size)))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			p.Time().Format("2006-01-02 15:04"),
			humanize.Time(p.Time()),
			media,
			oneLine(p.Text, 40),
		)
	}
	tw.Flush()
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clearQueue(c *cli.Context) error {
	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, ring, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	cleared, err := rt.queue.CancelAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("skyqueue: %d post(s) removed\n", cleared)
	return nil
}

func readUploads(paths, alts []string) ([]transfer.MediaUpload, error) {
	uploads := make([]transfer.MediaUpload, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s does not exist", models.ErrValidation, path)
			}
			return nil, err
		}
		alt := ""
		if i < len(alts) {
			alt = alts[i]
		}
		uploads = append(uploads, transfer.MediaUpload{
			Name:    filepath.Base(path),
			AltText: alt,
			Data:    data,
		})
	}
	return uploads, nil
}
