package orchestrator

// PoolResults maps a pool's task IDs to each task's result (or
// status/reason placeholder for a non-completed task), so two tasks in
// the same pool never collide in the unified context (spec.md §4.4
// "Aggregation" names the shape `{pool_name: result}`; this generalizes
// it to `{pool_name: {task_id: result}}` so partial success within one
// pool stays visible to synthesis).
type PoolResults map[string]map[string]interface{}

// aggregate validates each completed task's result shape, resolves
// conflicts with the fixed security-first policy, and builds the
// unified context map passed to synthesis (spec.md §4.4 "Aggregation").
func aggregate(d *dag) map[Pool]PoolResults {
	unified := make(map[Pool]PoolResults)

	for _, id := range d.order {
		t := d.byID[id]
		if unified[t.Pool] == nil {
			unified[t.Pool] = make(PoolResults)
		}

		switch {
		case t.Status != StatusCompleted:
			unified[t.Pool][t.ID] = map[string]interface{}{"status": string(t.Status), "reason": t.FailReason}
		case !shapeValid(t.Pool, t.Result):
			unified[t.Pool][t.ID] = map[string]interface{}{"status": "failed", "reason": "invalid_result_shape"}
		default:
			unified[t.Pool][t.ID] = t.Result
		}
	}

	resolveConflicts(unified)
	return unified
}

// shapeValid checks the pool-specific required field (spec.md §4.4):
// codegen results carry "code", security results "findings", database
// results "schema". Only the key's presence is checked; the type of its
// value is not, so a "findings" value that is not a list passes.
func shapeValid(pool Pool, result map[string]interface{}) bool {
	if result == nil {
		return false
	}
	switch pool {
	case PoolCodegen:
		_, ok := result["code"]
		return ok
	case PoolSecurity:
		_, ok := result["findings"]
		return ok
	case PoolDatabase:
		_, ok := result["schema"]
		return ok
	default:
		return true
	}
}

// resolveConflicts applies the closed conflict set: security-vs-codegen
// and schema-vs-code, always resolved security-first. Both checks scan
// every task in the relevant pool, since a pool can hold more than one
// task's result.
func resolveConflicts(unified map[Pool]PoolResults) {
	security := unified[PoolSecurity]
	codegen := unified[PoolCodegen]
	_, hasDatabase := unified[PoolDatabase]

	hasFindings := false
	for _, result := range security {
		if findings, ok := result["findings"].([]interface{}); ok && len(findings) > 0 {
			hasFindings = true
			break
		}
	}
	if hasFindings {
		for _, result := range codegen {
			if _, alreadyRemediated := result["remediation"]; !alreadyRemediated {
				result["conflict_override"] = "security-vs-codegen: security findings take precedence over codegen recommendation"
			}
		}
	}

	if hasDatabase {
		for _, result := range codegen {
			if _, ok := result["references_unknown_columns"]; ok {
				result["conflict_override"] = "schema-vs-code: database schema is authoritative over codegen column references"
			}
		}
	}
}
