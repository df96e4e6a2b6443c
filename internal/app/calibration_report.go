// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/image/math/f64"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

func num(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// CalibrationTables renders the per-camera intrinsics and the stereo pairs of
// store for the cameras of topo. Cameras without calibration are listed as
// missing so gaps are visible before streaming.
func CalibrationTables(store *calibration.Store, topo frame.Topology) string {
	cams := table.NewWriter()
	cams.SetStyle(table.StyleRounded)
	cams.SetTitle("Cameras")
	cams.AppendHeader(table.Row{"Camera", "f", "u0", "v0", "k1", "k2", "r1", "r2", "Pair"})
	for cam := 0; cam < topo.CameraCount; cam++ {
		in, ok := store.Intrinsics(cam)
		if !ok {
			cams.AppendRow(table.Row{cam, "missing", "", "", "", "", "", "", ""})
			continue
		}
		pair := "-"
		if _, _, k, ok := store.Homography(cam); ok {
			pair = strconv.Itoa(k)
		}
		cams.AppendRow(table.Row{
			cam, num(in.FocalLength), num(in.PrincipalPoint[0]), num(in.PrincipalPoint[1]),
			num(in.K1), num(in.K2), num(in.R1), num(in.R2), pair,
		})
	}
	configs := make([]table.ColumnConfig, 0, 8)
	for i := 2; i <= 8; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	cams.SetColumnConfigs(configs)

	pairs := table.NewWriter()
	pairs.SetStyle(table.StyleRounded)
	pairs.SetTitle("Stereo pairs")
	pairs.AppendHeader(table.Row{"Pair", "Left", "Right", "H left", "H right"})
	for _, sh := range store.Pairs() {
		pairs.AppendRow(table.Row{sh.Pair, sh.Left, sh.Right, formatMat(sh.HLeft), formatMat(sh.HRight)})
	}

	return cams.Render() + "\n" + pairs.Render()
}

func formatMat(m f64.Mat3) string {
	if m == calibration.Identity {
		return "identity"
	}
	return fmt.Sprintf("[%.3g %.3g %.3g; %.3g %.3g %.3g; %.3g %.3g %.3g]",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}

// WriteCalibrationTables writes CalibrationTables to w.
func WriteCalibrationTables(w io.Writer, store *calibration.Store, topo frame.Topology) error {
	_, err := fmt.Fprintln(w, CalibrationTables(store, topo))
	return err
}
