package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemu-compose/internal/config"
	"github.com/javanstorm/qemu-compose/internal/image"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List images in the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(config.Global)
		if err != nil {
			return err
		}

		root, err := st.ImageRoot()
		if err != nil {
			return err
		}
		entries, err := image.List(root)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "REPOSITORY\tTAG\tIMAGE ID\tCREATED\tSIZE")
		for _, e := range entries {
			size := humanSize(e.Manifest.DiskSize(e.Dir))
			created := humanAge(e.Manifest.Created, time.Now())
			tags := e.Manifest.RepoTags
			if len(tags) == 0 {
				fmt.Fprintf(w, "<none>\t<none>\t%s\t%s\t%s\n", e.Manifest.ShortID(), created, size)
				continue
			}
			for _, tag := range tags {
				rt := image.ParseRepoTag(tag)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rt.Repo, rt.Tag, e.Manifest.ShortID(), created, size)
			}
		}
		return w.Flush()
	},
}

func humanAge(created, now time.Time) string {
	if created.IsZero() {
		return "<unknown>"
	}
	d := now.Sub(created)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	days := int(d.Hours()) / 24
	switch {
	case days < 30:
		return fmt.Sprintf("%dd ago", days)
	case days < 365:
		return fmt.Sprintf("%dmo ago", days/30)
	}
	return fmt.Sprintf("%dy ago", days/365)
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 4 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTP"[exp])
}
