package store

import "database/sql"

// schema runs on every startup; all statements are idempotent.
// menu_templates must exist before users because of the assignment
// foreign key.
const schema = `
CREATE TABLE IF NOT EXISTS menu_templates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    protein TEXT NOT NULL DEFAULT '[]',
    carbs TEXT NOT NULL DEFAULT '[]',
    fat TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    menu_template_id INTEGER,
    created_at TEXT NOT NULL,
    FOREIGN KEY (menu_template_id) REFERENCES menu_templates(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS menu_entries (
    user_id TEXT NOT NULL,
    day_key TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user_id, day_key),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS workout_entries (
    user_id TEXT NOT NULL,
    day_key TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user_id, day_key),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS favorites (
    user_id TEXT NOT NULL,
    category TEXT NOT NULL,
    item_id INTEGER NOT NULL,
    item TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user_id, category, item_id),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS allowances (
    user_id TEXT PRIMARY KEY,
    protein INTEGER NOT NULL,
    carbs INTEGER NOT NULL,
    fat INTEGER NOT NULL,
    free_calories INTEGER NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS workout_schedules (
    user_id TEXT PRIMARY KEY,
    weekly_muscle INTEGER NOT NULL,
    weekly_cardio INTEGER NOT NULL,
    workout_routine TEXT NOT NULL DEFAULT '{}',
    custom_exercises TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_menu_entries_user ON menu_entries(user_id);
CREATE INDEX IF NOT EXISTS idx_workout_entries_user ON workout_entries(user_id);
CREATE INDEX IF NOT EXISTS idx_favorites_user ON favorites(user_id);
`

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)

	return err
}
