package provider

import (
	"time"

	"trophy-manager/core/utils"
	"trophy-manager/feature/achievements/reconcile"
)

// RawPayload is the loosely-typed shape provider backends tend to return:
// lists of string-keyed maps with inconsistent scalar types. FromRaw coerces
// it into a typed snapshot so adapters don't repeat per-field type switches.
type RawPayload struct {
	Definitions []map[string]any
	Unlocks     []map[string]any
	Complete    bool
}

// FromRaw normalizes a raw payload. Unknown keys are ignored; missing keys
// get zero values. Rows without an api name are dropped as malformed.
func FromRaw(raw RawPayload) reconcile.Snapshot {
	snapshot := reconcile.Snapshot{Complete: raw.Complete}

	for _, row := range raw.Definitions {
		apiName := utils.ToString(row["api_name"])
		if apiName == "" {
			continue
		}
		snapshot.Definitions = append(snapshot.Definitions, reconcile.IncomingDefinition{
			APIName:             apiName,
			DisplayName:         utils.ToString(row["name"]),
			Description:         utils.ToString(row["description"]),
			UnlockedIconRef:     utils.ToString(row["icon"]),
			LockedIconRef:       utils.ToString(row["icon_locked"]),
			Hidden:              utils.ToBool(row["hidden"]),
			GlobalUnlockPercent: utils.ToFloat(row["percent"]),
			ProgressMax:         utils.ToInt(row["progress_max"]),
			Points:              utils.ToInt(row["points"]),
			Category:            utils.ToString(row["category"]),
		})
	}

	for _, row := range raw.Unlocks {
		apiName := utils.ToString(row["api_name"])
		if apiName == "" {
			continue
		}
		unlock := reconcile.IncomingUnlock{APIName: apiName}

		if _, ok := row["unlocked"]; ok {
			v := utils.ToBool(row["unlocked"])
			unlock.Unlocked = &v
		}
		if ts := utils.ToInt(row["unlock_time"]); ts > 0 {
			t := time.Unix(int64(ts), 0).UTC()
			unlock.UnlockedAt = &t
		}
		if _, ok := row["progress_num"]; ok {
			num := utils.ToInt(row["progress_num"])
			denom := utils.ToInt(row["progress_denom"])
			unlock.Num = &num
			unlock.Denom = &denom
		}

		snapshot.Unlocks = append(snapshot.Unlocks, unlock)
	}

	return snapshot
}
