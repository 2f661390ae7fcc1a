package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeBoxFile(t *testing.T, f boxFile) string {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "boxes.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

var sceneBoxes = boxFile{
	Boxes: [][4]float32{
		{0, 0, 10, 10},
		{1, 1, 11, 11},
		{20, 20, 30, 30},
	},
	Scores: []float32{0.9, 0.8, 0.95},
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "born-vision "+version+"\n", out)
}

func TestEnvCommand(t *testing.T) {
	out, err := execute(t, "env")
	require.NoError(t, err)
	for _, name := range []string{"BORN_DEBUG", "BORN_NUM_THREADS", "BORN_MIN_CHUNK", "BORN_MAX_ALLOC", "BORN_ACCUMULATE"} {
		assert.Contains(t, out, name)
	}
}

func TestNMSCommand(t *testing.T) {
	xywh := boxFile{
		Format: "xywh",
		Boxes: [][4]float32{
			{0, 0, 10, 10},
			{1, 1, 10, 10},
			{20, 20, 10, 10},
		},
		Scores: sceneBoxes.Scores,
	}

	tests := []struct {
		name string
		file boxFile
		args []string
		want []int
	}{
		{"default threshold", sceneBoxes, nil, []int{0, 2}},
		{"high threshold", sceneBoxes, []string{"--threshold", "0.7"}, []int{0, 1, 2}},
		{"verified", sceneBoxes, []string{"--verify"}, []int{0, 2}},
		{"xywh input", xywh, []string{"-t", "0.5"}, []int{0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"nms", writeBoxFile(t, tt.file), "--json"}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)

			var got struct {
				Keep []int `json:"keep"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.want, got.Keep)
		})
	}
}

func TestNMSCommandTable(t *testing.T) {
	out, err := execute(t, "nms", writeBoxFile(t, sceneBoxes))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"INDEX", "SCORE", "BOX"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "0.9"}, strings.Fields(lines[1])[:2])
	assert.Equal(t, []string{"2", "0.95"}, strings.Fields(lines[2])[:2])
}

func TestNMSCommandErrors(t *testing.T) {
	noScores := sceneBoxes
	noScores.Scores = nil
	badFormat := sceneBoxes
	badFormat.Format = "polar"

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing scores", []string{"nms", writeBoxFile(t, noScores)}, "score per box"},
		{"unknown format", []string{"nms", writeBoxFile(t, badFormat)}, "unknown box format"},
		{"threshold out of range", []string{"nms", writeBoxFile(t, sceneBoxes), "-t", "1.5"}, "threshold"},
		{"unknown backend", []string{"nms", writeBoxFile(t, sceneBoxes), "--backend", "tpu"}, "unknown backend"},
		{"missing file", []string{"nms", filepath.Join(t.TempDir(), "none.json")}, "none.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadBoxFileRejectsScoreCount(t *testing.T) {
	bad := sceneBoxes
	bad.Scores = []float32{0.5}
	_, err := readBoxFile(writeBoxFile(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 scores for 3 boxes")
}

func TestIoUCommand(t *testing.T) {
	path := writeBoxFile(t, sceneBoxes)
	out, err := execute(t, "iou", path, "--json")
	require.NoError(t, err)

	var got struct {
		IoU [][]float32 `json:"iou"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.IoU, 3)
	for i := range got.IoU {
		require.Len(t, got.IoU[i], 3)
		assert.InDelta(t, 1, got.IoU[i][i], 1e-6)
	}
	assert.InDelta(t, 81.0/119.0, got.IoU[0][1], 1e-6)
	assert.InDelta(t, got.IoU[0][1], got.IoU[1][0], 1e-6)
	assert.Zero(t, got.IoU[0][2])
}

func TestIoUCommandTwoFiles(t *testing.T) {
	other := boxFile{Boxes: [][4]float32{{0, 0, 10, 5}}}
	out, err := execute(t, "iou", writeBoxFile(t, sceneBoxes), writeBoxFile(t, other))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "0.5000")
}

func TestBenchCommand(t *testing.T) {
	out, err := execute(t, "bench", "--boxes", "16", "--rois", "4", "--channels", "2", "--size", "6", "-n", "1")
	require.NoError(t, err)
	for _, op := range []string{"roi_align", "roi_align_backward", "ps_roi_align", "pairwise_iou", "nms", "deform_conv2d", "deform_conv2d_backward"} {
		assert.Contains(t, out, op)
	}
	assert.Contains(t, out, "cpu")
}

func TestBenchCommandRejectsNonPositive(t *testing.T) {
	_, err := execute(t, "bench", "--iterations", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--iterations must be positive")
}
