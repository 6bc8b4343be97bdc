package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(100) NOT NULL,
				trigger_config JSONB NOT NULL DEFAULT '{}',
				actions JSONB NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_trigger ON workflow_definitions(trigger_type) WHERE is_active;

			CREATE TABLE workflow_runs (
				id TEXT PRIMARY KEY,
				workflow_definition_id TEXT NOT NULL,
				definition_snapshot JSONB NOT NULL,
				target_entity_id TEXT NOT NULL,
				target_entity_type TEXT NOT NULL DEFAULT '',
				triggering_event_id TEXT NOT NULL,
				event_payload JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'running', 'waiting', 'completed', 'failed', 'cancelled')),
				current_step_index INTEGER NOT NULL DEFAULT 0,
				next_wake_at TIMESTAMP WITH TIME ZONE,
				step_results JSONB NOT NULL DEFAULT '[]',
				cancel_requested BOOLEAN NOT NULL DEFAULT false,
				claimed_by TEXT NOT NULL DEFAULT '',
				claimed_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			-- At most one non-terminal run per (definition, entity, event)
			CREATE UNIQUE INDEX idx_workflow_runs_in_flight
				ON workflow_runs(workflow_definition_id, target_entity_id, triggering_event_id)
				WHERE status IN ('pending', 'running', 'waiting');

			CREATE INDEX idx_workflow_runs_wake ON workflow_runs(next_wake_at) WHERE status = 'waiting';
			CREATE INDEX idx_workflow_runs_claim ON workflow_runs(claimed_at) WHERE status = 'running';
			CREATE INDEX idx_workflow_runs_definition ON workflow_runs(workflow_definition_id);
			CREATE INDEX idx_workflow_runs_entity ON workflow_runs(target_entity_id);
		`,
		2: `
			CREATE TABLE run_dedup_keys (
				dedup_key TEXT PRIMARY KEY,
				acquired_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE step_executions (
				run_id TEXT NOT NULL,
				step_index INTEGER NOT NULL,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (run_id, step_index)
			);
		`,
	}
}
