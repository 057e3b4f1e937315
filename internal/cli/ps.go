package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemu-compose/internal/config"
)

var psAll bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List instances",
	Long:  `List running instances. Use --all to include exited ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(config.Global)
		if err != nil {
			return err
		}

		instances, err := st.Instances()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 8, 2, ' ', 0)
		fmt.Fprintln(w, "INSTANCE ID\tNAME\tCID\tQEMU PID\tSTATUS")
		for _, inst := range instances {
			running := inst.Running()
			if !running && !psAll {
				continue
			}
			status := "exited"
			if running {
				status = "running"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				inst.VMID, orDash(inst.Name), cidString(inst.CID), pidString(inst.Pid), status)
		}
		return w.Flush()
	},
}

func init() {
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "show exited instances too")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cidString(cid uint32) string {
	if cid == 0 {
		return "-"
	}
	return strconv.FormatUint(uint64(cid), 10)
}

func pidString(pid int) string {
	if pid == 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}
