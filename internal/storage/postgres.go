package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipstream/internal/models"
)

const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeSerializationFail   = "40001"
	pgCodeDeadlockDetected    = "40P01"

	txMaxAttempts   = 3
	txRetryBaseWait = 25 * time.Millisecond
)

// PostgresRepository is the production repository. Relation rows and the
// denormalized counters they feed are always written in the same transaction;
// serialization failures are retried a bounded number of times before the
// conflict is surfaced to the caller.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a Postgres-backed repository and verifies the
// connection. Migrations must be applied separately, see MigratePostgres.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (*PostgresRepository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close drains the pool, honouring the context deadline.
func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Pool exposes the underlying connection pool for components that share the
// database, such as the session store.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func pgConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func isRetryableTxError(err error) bool {
	code := pgErrorCode(err)
	return code == pgCodeSerializationFail || code == pgCodeDeadlockDetected
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	// Rollback after commit reports ErrTxClosed, which is fine to ignore.
	_ = tx.Rollback(ctx)
}

func (r *PostgresRepository) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, retrying serialization failures and
// deadlocks with a short linear backoff before reporting ErrConflict.
func (r *PostgresRepository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryBaseWait):
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

const userColumns = `id, email, password_hash, display_name, avatar_url, channel_name, channel_description, subscriber_count, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.AvatarURL,
		&user.ChannelName,
		&user.ChannelDescription,
		&user.SubscriberCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

const videoColumns = `id, owner_id, title, description, tags, visibility, video_url, thumbnail_url, views, likes, dislikes, created_at, updated_at`

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video      models.Video
		visibility string
	)
	err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.Description,
		&video.Tags,
		&visibility,
		&video.VideoURL,
		&video.ThumbnailURL,
		&video.Stats.Views,
		&video.Stats.Likes,
		&video.Stats.Dislikes,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	video.Visibility = models.Visibility(visibility)
	return video, err
}

func (r *PostgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if len(params.Password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return models.User{}, errors.New("display name is required")
	}
	channelName := strings.TrimSpace(params.ChannelName)
	if channelName == "" {
		channelName = displayName
	}

	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
                INSERT INTO users (id, email, password_hash, display_name, avatar_url, channel_name, channel_description, subscriber_count, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, '', 0, $7, $7)
                RETURNING `+userColumns,
		id, email, hashed, displayName, strings.TrimSpace(params.AvatarURL), channelName, now,
	)
	user, err := scanUser(row)
	if err != nil {
		if pgErrorCode(err) == pgCodeUniqueViolation {
			if pgConstraint(err) == "users_channel_name_idx" {
				return models.User{}, ErrChannelNameInUse
			}
			return models.User{}, ErrEmailInUse
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		normalizeEmail(email),
	)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrInvalidCredentials
	} else if err != nil {
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, false, nil
	} else if err != nil {
		return models.User{}, false, fmt.Errorf("select user: %w", err)
	}
	return user, true, nil
}

func (r *PostgresRepository) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	var updated models.User
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		user, err := scanUser(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("select user for update: %w", err)
		}

		if update.ChannelName != nil {
			channelName := strings.TrimSpace(*update.ChannelName)
			if channelName == "" {
				return errors.New("channel name cannot be empty")
			}
			user.ChannelName = channelName
		}
		if update.DisplayName != nil {
			displayName := strings.TrimSpace(*update.DisplayName)
			if displayName == "" {
				return errors.New("display name cannot be empty")
			}
			user.DisplayName = displayName
		}
		if update.AvatarURL != nil {
			user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
		}
		if update.ChannelDescription != nil {
			user.ChannelDescription = strings.TrimSpace(*update.ChannelDescription)
		}
		user.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
                        UPDATE users
                        SET display_name = $2, avatar_url = $3, channel_name = $4, channel_description = $5, updated_at = $6
                        WHERE id = $1`,
			user.ID, user.DisplayName, user.AvatarURL, user.ChannelName, user.ChannelDescription, user.UpdatedAt,
		)
		if err != nil {
			if pgErrorCode(err) == pgCodeUniqueViolation {
				return ErrChannelNameInUse
			}
			return fmt.Errorf("update user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}

func (r *PostgresRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	if strings.TrimSpace(params.VideoURL) == "" {
		return models.Video{}, errors.New("video URL is required")
	}
	visibility := params.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
                INSERT INTO videos (id, owner_id, title, description, tags, visibility, video_url, thumbnail_url, views, likes, dislikes, created_at, updated_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, 0, $9, $9)
                RETURNING `+videoColumns,
		id, params.OwnerID, title, strings.TrimSpace(params.Description), normalizeTags(params.Tags),
		string(visibility), strings.TrimSpace(params.VideoURL), strings.TrimSpace(params.ThumbnailURL), now,
	)
	video, err := scanVideo(row)
	if err != nil {
		if pgErrorCode(err) == pgCodeForeignKeyViolation {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

func (r *PostgresRepository) GetVideo(ctx context.Context, id string) (models.Video, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, false, nil
	} else if err != nil {
		return models.Video{}, false, fmt.Errorf("select video: %w", err)
	}
	return video, true, nil
}

func (r *PostgresRepository) WatchVideo(ctx context.Context, id string) (models.Video, error) {
	row := r.pool.QueryRow(ctx, `
                UPDATE videos SET views = views + 1, updated_at = $2
                WHERE id = $1
                RETURNING `+videoColumns,
		id, time.Now().UTC(),
	)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrNotFound
	} else if err != nil {
		return models.Video{}, fmt.Errorf("increment views: %w", err)
	}
	return video, nil
}

func (r *PostgresRepository) UpdateVideo(ctx context.Context, videoID, ownerID string, update VideoUpdate) (models.Video, error) {
	var updated models.Video
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+videoColumns+` FROM videos WHERE id = $1 AND owner_id = $2 FOR UPDATE`,
			videoID, ownerID,
		)
		video, err := scanVideo(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFoundOrForbidden
		} else if err != nil {
			return fmt.Errorf("select video for update: %w", err)
		}

		if update.Title != nil {
			title := strings.TrimSpace(*update.Title)
			if title == "" {
				return errors.New("title cannot be empty")
			}
			video.Title = title
		}
		if update.Description != nil {
			video.Description = strings.TrimSpace(*update.Description)
		}
		if update.Tags != nil {
			video.Tags = normalizeTags(*update.Tags)
		}
		if update.Visibility != nil {
			video.Visibility = *update.Visibility
		}
		video.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
                        UPDATE videos
                        SET title = $2, description = $3, tags = $4, visibility = $5, updated_at = $6
                        WHERE id = $1`,
			video.ID, video.Title, video.Description, video.Tags, string(video.Visibility), video.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update video: %w", err)
		}
		updated = video
		return nil
	})
	if err != nil {
		return models.Video{}, err
	}
	return updated, nil
}

func (r *PostgresRepository) ListVideos(ctx context.Context, filter VideoFilter) ([]models.Video, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.ChannelID != "" {
		args = append(args, filter.ChannelID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	} else {
		args = append(args, string(models.VisibilityPublic))
		conditions = append(conditions, fmt.Sprintf("visibility = $%d", len(args)))
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		args = append(args, "%"+query+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if tag := foldForSearch(filter.Tag); tag != "" {
		args = append(args, tag)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	orderBy := "created_at DESC, id"
	if filter.Sort == SortPopular {
		orderBy = "views DESC, created_at DESC"
	}

	sql := `SELECT ` + videoColumns + ` FROM videos WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY ` + orderBy
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// DeleteVideo removes the video and its dependent reactions and history rows
// in one transaction. The owner filter makes a foreign video indistinguishable
// from a missing one.
func (r *PostgresRepository) DeleteVideo(ctx context.Context, videoID, ownerID string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM videos WHERE id = $1 AND owner_id = $2`, videoID, ownerID)
		if err != nil {
			return fmt.Errorf("delete video: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFoundOrForbidden
		}
		if _, err := tx.Exec(ctx, `DELETE FROM likes WHERE video_id = $1`, videoID); err != nil {
			return fmt.Errorf("delete video likes: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM history WHERE video_id = $1`, videoID); err != nil {
			return fmt.Errorf("delete video history: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) SetReaction(ctx context.Context, userID, videoID string, status models.ReactionStatus) (ReactionResult, error) {
	var result ReactionResult
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the video row so the counter update and the reaction write
		// land as one unit even under concurrent reactions.
		var lockedID string
		err := tx.QueryRow(ctx, `SELECT id FROM videos WHERE id = $1 FOR UPDATE`, videoID).Scan(&lockedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("lock video: %w", err)
		}

		var existing string
		err = tx.QueryRow(ctx,
			`SELECT status FROM likes WHERE user_id = $1 AND video_id = $2 FOR UPDATE`,
			userID, videoID,
		).Scan(&existing)
		hasExisting := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select reaction: %w", err)
		}

		if hasExisting && models.ReactionStatus(existing) == status {
			result = ReactionResult{Changed: false, Status: status}
			return nil
		}

		now := time.Now().UTC()
		if hasExisting {
			if _, err := tx.Exec(ctx,
				`UPDATE likes SET status = $3, updated_at = $4 WHERE user_id = $1 AND video_id = $2`,
				userID, videoID, string(status), now,
			); err != nil {
				return fmt.Errorf("update reaction: %w", err)
			}
			if err := adjustVideoCounter(ctx, tx, videoID, models.ReactionStatus(existing), -1, now); err != nil {
				return err
			}
		} else {
			id, err := generateID()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
                                INSERT INTO likes (id, user_id, video_id, status, created_at, updated_at)
                                VALUES ($1, $2, $3, $4, $5, $5)`,
				id, userID, videoID, string(status), now,
			); err != nil {
				if pgErrorCode(err) == pgCodeForeignKeyViolation {
					return ErrNotFound
				}
				return fmt.Errorf("insert reaction: %w", err)
			}
		}
		if err := adjustVideoCounter(ctx, tx, videoID, status, 1, now); err != nil {
			return err
		}
		result = ReactionResult{Changed: true, Status: status}
		return nil
	})
	if err != nil {
		return ReactionResult{}, err
	}
	return result, nil
}

// adjustVideoCounter is the counter chokepoint on the Postgres side; clamping
// at zero mirrors the JSON store.
func adjustVideoCounter(ctx context.Context, tx pgx.Tx, videoID string, status models.ReactionStatus, delta int, now time.Time) error {
	column := "likes"
	if status == models.ReactionDislike {
		column = "dislikes"
	}
	sql := fmt.Sprintf(`UPDATE videos SET %s = GREATEST(%s + $2, 0), updated_at = $3 WHERE id = $1`, column, column)
	if _, err := tx.Exec(ctx, sql, videoID, delta, now); err != nil {
		return fmt.Errorf("adjust %s counter: %w", column, err)
	}
	return nil
}

func (r *PostgresRepository) RemoveReaction(ctx context.Context, userID, videoID string) (models.ReactionStatus, error) {
	var removed models.ReactionStatus
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`DELETE FROM likes WHERE user_id = $1 AND video_id = $2 RETURNING status`,
			userID, videoID,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("delete reaction: %w", err)
		}
		removed = models.ReactionStatus(status)
		return adjustVideoCounter(ctx, tx, videoID, removed, -1, time.Now().UTC())
	})
	if err != nil {
		return "", err
	}
	return removed, nil
}

func (r *PostgresRepository) GetReaction(ctx context.Context, userID, videoID string) (models.ReactionStatus, bool, error) {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM likes WHERE user_id = $1 AND video_id = $2`,
		userID, videoID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("select reaction: %w", err)
	}
	return models.ReactionStatus(status), true, nil
}

func (r *PostgresRepository) ListLikedVideos(ctx context.Context, userID string) ([]LikedVideo, error) {
	rows, err := r.pool.Query(ctx, `
                SELECT `+prefixColumns("v", videoColumns)+`,
                       u.id, u.display_name, u.avatar_url, u.channel_name,
                       l.updated_at
                FROM likes l
                JOIN videos v ON v.id = l.video_id
                JOIN users u ON u.id = v.owner_id
                WHERE l.user_id = $1 AND l.status = $2
                ORDER BY l.updated_at DESC, v.id`,
		userID, string(models.ReactionLike),
	)
	if err != nil {
		return nil, fmt.Errorf("select liked videos: %w", err)
	}
	defer rows.Close()

	liked := make([]LikedVideo, 0)
	for rows.Next() {
		var (
			entry      LikedVideo
			visibility string
		)
		err := rows.Scan(
			&entry.Video.ID, &entry.Video.OwnerID, &entry.Video.Title, &entry.Video.Description,
			&entry.Video.Tags, &visibility, &entry.Video.VideoURL, &entry.Video.ThumbnailURL,
			&entry.Video.Stats.Views, &entry.Video.Stats.Likes, &entry.Video.Stats.Dislikes,
			&entry.Video.CreatedAt, &entry.Video.UpdatedAt,
			&entry.Channel.ID, &entry.Channel.DisplayName, &entry.Channel.AvatarURL, &entry.Channel.ChannelName,
			&entry.LikedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan liked video: %w", err)
		}
		entry.Video.Visibility = models.Visibility(visibility)
		liked = append(liked, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liked videos: %w", err)
	}
	return liked, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

func (r *PostgresRepository) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	if subscriberID == channelID {
		return ErrSelfSubscription
	}
	return r.withTx(ctx, func(tx pgx.Tx) error {
		id, err := generateID()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `
                        INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
                        VALUES ($1, $2, $3, $4)`,
			id, subscriberID, channelID, now,
		); err != nil {
			switch pgErrorCode(err) {
			case pgCodeUniqueViolation:
				return ErrAlreadySubscribed
			case pgCodeForeignKeyViolation:
				return ErrNotFound
			}
			return fmt.Errorf("insert subscription: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE users SET subscriber_count = subscriber_count + 1, updated_at = $2 WHERE id = $1`,
			channelID, now,
		)
		if err != nil {
			return fmt.Errorf("increment subscriber count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostgresRepository) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`,
			subscriberID, channelID,
		)
		if err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotSubscribed
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET subscriber_count = GREATEST(subscriber_count - 1, 0), updated_at = $2 WHERE id = $1`,
			channelID, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("decrement subscriber count: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	var subscribed bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2)`,
		subscriberID, channelID,
	).Scan(&subscribed)
	if err != nil {
		return false, fmt.Errorf("select subscription: %w", err)
	}
	return subscribed, nil
}

func (r *PostgresRepository) ListSubscribedChannels(ctx context.Context, subscriberID string) ([]SubscribedChannel, error) {
	rows, err := r.pool.Query(ctx, `
                SELECT u.id, u.display_name, u.avatar_url, u.channel_name, u.subscriber_count, s.created_at
                FROM subscriptions s
                JOIN users u ON u.id = s.channel_id
                WHERE s.subscriber_id = $1
                ORDER BY s.created_at DESC, u.id`,
		subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}
	defer rows.Close()

	channels := make([]SubscribedChannel, 0)
	for rows.Next() {
		var entry SubscribedChannel
		err := rows.Scan(
			&entry.Channel.ID, &entry.Channel.DisplayName, &entry.Channel.AvatarURL, &entry.Channel.ChannelName,
			&entry.SubscriberCount, &entry.SubscribedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		channels = append(channels, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return channels, nil
}

func (r *PostgresRepository) UpsertHistory(ctx context.Context, userID, videoID string) (models.HistoryEntry, error) {
	id, err := generateID()
	if err != nil {
		return models.HistoryEntry{}, err
	}
	now := time.Now().UTC()
	var entry models.HistoryEntry
	err = r.pool.QueryRow(ctx, `
                INSERT INTO history (id, user_id, video_id, watched_at)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at
                RETURNING id, user_id, video_id, watched_at`,
		id, userID, videoID, now,
	).Scan(&entry.ID, &entry.UserID, &entry.VideoID, &entry.WatchedAt)
	if err != nil {
		if pgErrorCode(err) == pgCodeForeignKeyViolation {
			return models.HistoryEntry{}, ErrNotFound
		}
		return models.HistoryEntry{}, fmt.Errorf("upsert history: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) ListHistory(ctx context.Context, userID string) ([]WatchedVideo, error) {
	rows, err := r.pool.Query(ctx, `
                SELECT `+prefixColumns("v", videoColumns)+`,
                       u.id, u.display_name, u.avatar_url, u.channel_name,
                       h.watched_at
                FROM history h
                JOIN videos v ON v.id = h.video_id
                JOIN users u ON u.id = v.owner_id
                WHERE h.user_id = $1
                ORDER BY h.watched_at DESC, v.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	watched := make([]WatchedVideo, 0)
	for rows.Next() {
		var (
			entry      WatchedVideo
			visibility string
		)
		err := rows.Scan(
			&entry.Video.ID, &entry.Video.OwnerID, &entry.Video.Title, &entry.Video.Description,
			&entry.Video.Tags, &visibility, &entry.Video.VideoURL, &entry.Video.ThumbnailURL,
			&entry.Video.Stats.Views, &entry.Video.Stats.Likes, &entry.Video.Stats.Dislikes,
			&entry.Video.CreatedAt, &entry.Video.UpdatedAt,
			&entry.Channel.ID, &entry.Channel.DisplayName, &entry.Channel.AvatarURL, &entry.Channel.ChannelName,
			&entry.WatchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Video.Visibility = models.Visibility(visibility)
		watched = append(watched, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return watched, nil
}

func (r *PostgresRepository) VideoAggregates(ctx context.Context, channelID string) (VideoAggregates, error) {
	var agg VideoAggregates
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(views), 0) FROM videos WHERE owner_id = $1`,
		channelID,
	).Scan(&agg.Videos, &agg.Views)
	if err != nil {
		return VideoAggregates{}, fmt.Errorf("aggregate videos: %w", err)
	}
	return agg, nil
}
