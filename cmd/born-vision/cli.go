package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/vision/detection"
	"github.com/born-ml/vision/internal/envconfig"
	"github.com/born-ml/vision/internal/logutil"
	"github.com/born-ml/vision/tensor"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "born-vision",
		Short: "Detection operators: ROIAlign, deformable sampling, IoU and NMS",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	rootCmd.PersistentFlags().StringP("backend", "b", "cpu", "Compute backend ("+strings.Join(backendNames(), ", ")+")")

	cobra.EnableCommandSorting = false

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "born-vision %s\n", version)
		},
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show the BORN_* environment settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showEnv(cmd.OutOrStdout())
		},
	}

	nmsCmd := &cobra.Command{
		Use:   "nms FILE",
		Short: "Run non-maximum suppression over a JSON box file",
		Args:  cobra.ExactArgs(1),
		RunE:  NMSHandler,
	}
	nmsCmd.Flags().Float32P("threshold", "t", 0.5, "IoU above which a lower-scoring box is suppressed")
	nmsCmd.Flags().Bool("verify", false, "Check the result against the serial reference")
	nmsCmd.Flags().Bool("json", false, "Print kept indices as JSON")

	iouCmd := &cobra.Command{
		Use:   "iou FILE [FILE]",
		Short: "Print the pairwise IoU matrix of one or two JSON box files",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  IoUHandler,
	}
	iouCmd.Flags().Bool("json", false, "Print the matrix as JSON")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time the operators on random inputs",
		Args:  cobra.NoArgs,
		RunE:  BenchHandler,
	}
	benchCmd.Flags().Int("boxes", 2000, "Boxes for IoU and NMS")
	benchCmd.Flags().Int("rois", 128, "Regions for ROIAlign")
	benchCmd.Flags().Int("channels", 64, "Feature map channels")
	benchCmd.Flags().Int("size", 50, "Feature map height and width")
	benchCmd.Flags().IntP("iterations", "n", 5, "Timed runs per operator")

	rootCmd.AddCommand(
		versionCmd,
		envCmd,
		nmsCmd,
		iouCmd,
		benchCmd,
	)

	return rootCmd
}

func newLogger() *slog.Logger {
	return logutil.NewLogger(os.Stderr, logutil.Level(envconfig.Debug))
}

// backendFromFlags opens the backend named by --backend.
func backendFromFlags(cmd *cobra.Command) (detection.Backend, func(), error) {
	name, err := cmd.Flags().GetString("backend")
	if err != nil {
		return nil, nil, err
	}
	return openBackend(name, newLogger())
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func showEnv(w io.Writer) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	table := newTable(w)
	table.SetHeader([]string{"name", "value", "description"})
	for _, name := range names {
		v := vars[name]
		table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}
	table.Render()
	return nil
}

func NMSHandler(cmd *cobra.Command, args []string) error {
	threshold, err := cmd.Flags().GetFloat32("threshold")
	if err != nil {
		return err
	}
	verify, err := cmd.Flags().GetBool("verify")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	f, err := readBoxFile(args[0])
	if err != nil {
		return err
	}

	backend, release, err := backendFromFlags(cmd)
	if err != nil {
		return err
	}
	defer release()

	return runNMS(cmd.OutOrStdout(), backend, f, threshold, verify, asJSON)
}

func runNMS(w io.Writer, backend detection.Backend, f *boxFile, threshold float32, verify, asJSON bool) error {
	rows, err := f.scored()
	if err != nil {
		return err
	}
	n := len(f.Boxes)
	boxes, err := tensor.FromFloat32(rows, tensor.Shape{n, 5}, backend.Device())
	if err != nil {
		return err
	}

	keep, err := backend.NMS(boxes, threshold)
	if err != nil {
		return err
	}

	if verify {
		ref := make([]detection.Box, n)
		for i := range ref {
			r := rows[i*5 : i*5+4]
			ref[i] = detection.Box{X1: r[0], Y1: r[1], X2: r[2], Y2: r[3]}
		}
		if want := detection.GreedyNMS(ref, f.Scores, threshold); !slices.Equal(keep, want) {
			return fmt.Errorf("nms: %s backend kept %v, reference kept %v", backend.Name(), keep, want)
		}
	}

	if asJSON {
		return json.NewEncoder(w).Encode(struct {
			Keep []int `json:"keep"`
		}{keep})
	}

	table := newTable(w)
	table.SetHeader([]string{"index", "score", "box"})
	for _, i := range keep {
		b := f.Boxes[i]
		table.Append([]string{
			strconv.Itoa(i),
			formatFloat(f.Scores[i]),
			fmt.Sprintf("%s %s %s %s", formatFloat(b[0]), formatFloat(b[1]), formatFloat(b[2]), formatFloat(b[3])),
		})
	}
	table.Render()
	return nil
}

func IoUHandler(cmd *cobra.Command, args []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	a, err := readBoxFile(args[0])
	if err != nil {
		return err
	}
	b := a
	if len(args) == 2 {
		if b, err = readBoxFile(args[1]); err != nil {
			return err
		}
	}

	backend, release, err := backendFromFlags(cmd)
	if err != nil {
		return err
	}
	defer release()

	return runIoU(cmd.OutOrStdout(), backend, a, b, asJSON)
}

func runIoU(w io.Writer, backend detection.Backend, a, b *boxFile, asJSON bool) error {
	boxes1, err := boxTensor(a, backend.Device())
	if err != nil {
		return err
	}
	boxes2, err := boxTensor(b, backend.Device())
	if err != nil {
		return err
	}

	ious, err := backend.PairwiseIoU(boxes1, boxes2)
	if err != nil {
		return err
	}
	n, m := len(a.Boxes), len(b.Boxes)
	data := ious.AsFloat32()

	if asJSON {
		matrix := make([][]float32, n)
		for i := range matrix {
			matrix[i] = data[i*m : (i+1)*m]
		}
		return json.NewEncoder(w).Encode(struct {
			IoU [][]float32 `json:"iou"`
		}{matrix})
	}

	table := newTable(w)
	header := []string{""}
	for j := 0; j < m; j++ {
		header = append(header, strconv.Itoa(j))
	}
	table.SetHeader(header)
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		row := []string{strconv.Itoa(i)}
		for j := 0; j < m; j++ {
			row = append(row, strconv.FormatFloat(float64(data[i*m+j]), 'f', 4, 32))
		}
		rows = append(rows, row)
	}
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func boxTensor(f *boxFile, device tensor.Device) (*tensor.RawTensor, error) {
	flat, err := f.ltrb()
	if err != nil {
		return nil, err
	}
	return tensor.FromFloat32(flat, tensor.Shape{len(f.Boxes), 4}, device)
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
