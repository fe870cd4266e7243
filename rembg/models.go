package rembg

import (
	"fmt"
	"io"

	"github.com/chaos-io/rembg-cli/ui"
)

type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Models 静态的已知模型列表，仅供展示，不与后端实际可用模型同步
var Models = []ModelInfo{
	{Name: "u2net", Description: "General purpose"},
	{Name: "u2netp", Description: "Lightweight version"},
	{Name: "u2net_human_seg", Description: "Human segmentation"},
	{Name: "silouette", Description: "Silhouette detection"},
	{Name: "isnet-general-use", Description: "High quality general use"},
}

var Recommended = []ModelInfo{
	{Name: "u2net", Description: "Best for general images"},
	{Name: "u2net_human_seg", Description: "Best for photos with people"},
	{Name: "isnet-general-use", Description: "Highest quality (slower)"},
}

func PrintModels(w io.Writer) {
	_, _ = ui.Header.Fprintln(w, "Available models:")
	for _, m := range Models {
		_, _ = fmt.Fprintf(w, "  - %-18s ", m.Name)
		_, _ = ui.Muted.Fprintf(w, "# %s\n", m.Description)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = ui.Header.Fprintln(w, "Recommended:")
	for _, m := range Recommended {
		_, _ = fmt.Fprintf(w, "  - %s: %s\n", ui.Success.Sprint(m.Name), m.Description)
	}
}
