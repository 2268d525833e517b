package ledger

const schema = `
CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    request TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL REFERENCES executions(id),
    description TEXT NOT NULL,
    type TEXT NOT NULL,
    backend TEXT,
    depends_on TEXT,
    context TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_execution_id ON tasks(execution_id);

CREATE TABLE IF NOT EXISTS results (
    round_id TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL REFERENCES executions(id),
    task_id TEXT NOT NULL REFERENCES tasks(id),
    round INTEGER NOT NULL,
    backend TEXT,
    status TEXT NOT NULL,
    files TEXT,
    metadata TEXT,
    elapsed_ms INTEGER,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_results_execution_id ON results(execution_id);

CREATE TABLE IF NOT EXISTS issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    round_id TEXT NOT NULL REFERENCES results(round_id),
    severity TEXT NOT NULL,
    category TEXT,
    location TEXT,
    description TEXT,
    auto_fixable BOOLEAN DEFAULT FALSE,
    confidence REAL,
    suggestion TEXT
);

CREATE INDEX IF NOT EXISTS idx_issues_round_id ON issues(round_id);

CREATE TABLE IF NOT EXISTS improvements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    round_id TEXT NOT NULL REFERENCES results(round_id),
    type TEXT,
    description TEXT,
    priority INTEGER,
    auto_applicable BOOLEAN DEFAULT FALSE,
    estimated_impact TEXT,
    applied BOOLEAN DEFAULT FALSE,
    applied_at TIMESTAMP,
    outcome TEXT
);

CREATE INDEX IF NOT EXISTS idx_improvements_round_id ON improvements(round_id);
`
