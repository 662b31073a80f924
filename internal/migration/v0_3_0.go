package migration

import (
	"fmt"

	"flexchat/pkg/version"
	"flexchat/store"
)

var v030 = version.Encode(version.MustParse("0.3.0"), 0)

// GeneralChannelName is the channel that receives every comment written
// before channels existed.
const GeneralChannelName = "General"

// migrate030 introduces channels: one General channel is created and every
// existing comment is assigned to it.
func migrate030(path string) error {
	raw, err := store.ReadRaw(path)
	if err != nil {
		return err
	}

	general := store.NewChannelID().String()
	raw["version-code"] = int64(v030)
	raw["channels"] = []map[string]any{
		{"id": general, "name": GeneralChannelName},
	}

	comments, err := commentTables(raw["comments"])
	if err != nil {
		return err
	}
	for _, comment := range comments {
		comment["channel-id"] = general
	}
	raw["comments"] = comments

	return store.WriteRaw(path, raw)
}

// commentTables normalizes the decoded comments array. A document without
// comments yields an empty slice.
func commentTables(value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return []map[string]any{}, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, entry := range v {
			table, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: comments[%d] is %T, want table", store.ErrParse, i, entry)
			}
			out = append(out, table)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: comments is %T, want array of tables", store.ErrParse, value)
}
