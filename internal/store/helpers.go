package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/botforge/flowbot/internal/models"
)

// scanFlow scans one flow row. The trigger_config, conditions, actions and
// ai_config columns hold JSON written by the dashboard; each decodes failing
// closed so one malformed column never poisons the whole flow list.
func scanFlow(rows *sql.Rows) (models.Flow, error) {
	var f models.Flow
	var module sql.NullString
	var triggerCfg, conditions, actions, aiCfg []byte
	err := rows.Scan(
		&f.ID, &f.BotID, &module, &f.Name, &f.Enabled, &f.Priority,
		&f.TriggerType, &triggerCfg, &conditions, &actions, &aiCfg,
	)
	if err != nil {
		return f, fmt.Errorf("scan flow failed: %w", err)
	}
	f.Module = module.String

	if len(triggerCfg) > 0 {
		if err := json.Unmarshal(triggerCfg, &f.TriggerConfig); err != nil {
			slog.Warn("store: malformed trigger_config, using zero config", "error", err, "flow_id", f.ID)
		}
	}
	if len(conditions) > 0 && string(conditions) != "null" {
		var c models.Conditions
		if err := json.Unmarshal(conditions, &c); err != nil {
			slog.Warn("store: malformed conditions, ignoring", "error", err, "flow_id", f.ID)
		} else {
			f.Conditions = &c
		}
	}
	f.Actions = models.DecodeActions(actions)
	if len(aiCfg) > 0 && string(aiCfg) != "null" {
		var a models.AIConfig
		if err := json.Unmarshal(aiCfg, &a); err != nil {
			slog.Warn("store: malformed ai_config, ignoring", "error", err, "flow_id", f.ID)
		} else {
			f.AIConfig = &a
		}
	}
	return f, nil
}

// collectFlows drains a flow query result set.
func collectFlows(rows *sql.Rows) ([]models.Flow, error) {
	defer rows.Close()
	var flows []models.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow rows: %w", err)
	}
	return flows, nil
}

// scanTemplate scans one template row with its JSON pages column.
func scanTemplate(row *sql.Row) (*models.Template, error) {
	var t models.Template
	var pages []byte
	if err := row.Scan(&t.ID, &t.BotID, &t.Name, &pages); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("template not found")
		}
		return nil, fmt.Errorf("scan template failed: %w", err)
	}
	if err := json.Unmarshal(pages, &t.Pages); err != nil {
		return nil, fmt.Errorf("decode template pages: %w", err)
	}
	return &t, nil
}
