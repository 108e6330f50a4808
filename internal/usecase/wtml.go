package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jaennil/plateserve/internal/repository/index"
)

// WTMLFolder renders the dataset listing as a WorldWide Telescope folder
// document. The index cache is resynced first so the listing reflects the
// remote service's current state.
//
// urlPrefix is the absolute prefix tiles are served under (ending in "/");
// rawQuery, when non-empty, is appended to every tile URL.
func (r *TileResolver) WTMLFolder(urlPrefix, rawQuery string) (string, error) {
	if err := r.index.Connect(); err != nil {
		return "", err
	}
	if err := r.index.Sync(); err != nil {
		return "", err
	}

	snapshot := r.index.Snapshot()

	ids := make([]int32, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out strings.Builder
	out.WriteString("<?xml version='1.0' encoding='UTF-8'?>\n")
	out.WriteString("<Folder Name='Ames Planetary Content' Group='View'>\n\n")
	for _, id := range ids {
		writeImageSet(&out, urlPrefix, rawQuery, snapshot[id])
	}
	out.WriteString("</Folder>\n")

	return out.String(), nil
}

func writeImageSet(out *strings.Builder, urlPrefix, rawQuery string, entry index.Entry) {
	base := urlPrefix + "p/" + strconv.Itoa(int(entry.ID))

	url := base + "/{1}/{2}/{3}." + entry.TileFiletype
	thumbnail := base + "/0/0/0." + entry.TileFiletype
	if rawQuery != "" {
		url += "?" + rawQuery
		thumbnail += "?" + rawQuery
	}

	attrs := [][2]string{
		{"BandPass", "Visible"},
		{"BaseDegreesPerTile", "360"},
		{"BaseTileLevel", "0"},
		{"BottomsUp", "False"},
		{"CenterX", "0"},
		{"CenterY", "0"},
		{"DataSetType", "Planet"},
		{"ElevationModel", "False"},
		{"FileType", "." + entry.TileFiletype},
		{"Generic", "False"},
		{"Name", entry.Description},
		{"OffsetX", "0"},
		{"OffsetY", "0"},
		{"Projection", "Toast"},
		{"QuadTreeMap", "0123"},
		{"Rotation", "0"},
		{"Sparse", "True"},
		{"StockSet", "False"},
		{"TileLevels", strconv.Itoa(entry.NumLevels)},
		{"Url", url},
	}

	out.WriteString("<ImageSet")
	for _, kv := range attrs {
		fmt.Fprintf(out, " %s='%s'", kv[0], escapeAttr(kv[1]))
	}
	out.WriteString(">\n")
	fmt.Fprintf(out, "\t<Credits></Credits>\n")
	fmt.Fprintf(out, "\t<ThumbnailUrl>%s</ThumbnailUrl>\n", escapeAttr(thumbnail))
	out.WriteString("</ImageSet>\n")
}

func escapeAttr(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "'", "&apos;")
	return replacer.Replace(s)
}
