// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

package photodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/james-langridge/mars-vista-api-sub001/photos"
)

// photosDB implements photos.Photos.
type photosDB struct {
	db *DB
}

const photoColumns = `
	p.id, p.external_id, p.rover_id, p.camera_id,
	p.sol, p.earth_date, p.taken_utc, p.mars_local_time, p.received_utc,
	p.image_thumbnail, p.image_small, p.image_medium, p.image_full,
	p.width, p.height, p.sample_type,
	p.site, p.drive, p.xyz,
	p.mast_azimuth, p.mast_elevation,
	p.filter_name, p.title, p.caption, p.credit,
	p.raw, p.created_at, p.updated_at,
	c.short_name, c.full_name, r.name
`

const photoJoins = `
	FROM photos p
	JOIN cameras c ON c.id = p.camera_id
	JOIN rovers r ON r.id = p.rover_id
`

func (db *photosDB) Get(ctx context.Context, id int64) (_ *photos.PhotoInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.db.pool.QueryRow(ctx,
		`SELECT `+photoColumns+photoJoins+` WHERE p.id = $1`, id)
	info, err := scanPhotoInfo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, photos.ErrPhotoNotFound.New("id %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return info, nil
}

func (db *photosDB) GetByExternalID(ctx context.Context, externalID string) (_ *photos.PhotoInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.db.pool.QueryRow(ctx,
		`SELECT `+photoColumns+photoJoins+` WHERE p.external_id = $1`, externalID)
	info, err := scanPhotoInfo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, photos.ErrPhotoNotFound.New("%q", externalID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return info, nil
}

func (db *photosDB) ExistingExternalIDs(ctx context.Context, roverID int64, ids []string) (_ map[string]struct{}, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := db.db.pool.Query(ctx, `
		SELECT external_id FROM photos
		WHERE rover_id = $1 AND external_id = ANY($2)
	`, roverID, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()
	return scanIDSet(rows)
}

func (db *photosDB) AllExternalIDs(ctx context.Context, roverID int64) (_ map[string]struct{}, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.pool.Query(ctx,
		`SELECT external_id FROM photos WHERE rover_id = $1`, roverID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()
	return scanIDSet(rows)
}

func (db *photosDB) SolExternalIDs(ctx context.Context, roverID int64, sol int) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.pool.Query(ctx, `
		SELECT external_id FROM photos
		WHERE rover_id = $1 AND sol = $2
		ORDER BY id
	`, roverID, sol)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, Error.Wrap(rows.Err())
}

func (db *photosDB) AddPhotos(ctx context.Context, batch []photos.Photo) (inserted []string, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := db.db.pool.Begin(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	queued := &pgx.Batch{}
	for _, photo := range batch {
		raw := []byte(photo.Raw)
		if len(raw) == 0 {
			raw = []byte(`{}`)
		}
		queued.Queue(`
			INSERT INTO photos (
				external_id, rover_id, camera_id,
				sol, earth_date, taken_utc, mars_local_time, received_utc,
				image_thumbnail, image_small, image_medium, image_full,
				width, height, sample_type,
				site, drive, xyz,
				mast_azimuth, mast_elevation,
				filter_name, title, caption, credit,
				raw
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
			)
			ON CONFLICT ( external_id ) DO NOTHING
			RETURNING external_id
		`,
			photo.ExternalID, photo.RoverID, photo.CameraID,
			photo.Sol, photo.EarthDate, nullTime(photo.TakenUTC), photo.MarsLocalTime, photo.ReceivedUTC,
			photo.ImageThumbnail, photo.ImageSmall, photo.ImageMedium, photo.ImageFull,
			photo.Width, photo.Height, photo.SampleType,
			photo.Site, photo.Drive, photo.XYZ,
			photo.MastAzimuth, photo.MastElevation,
			photo.FilterName, photo.Title, photo.Caption, photo.Credit,
			raw,
		)
	}

	results := tx.SendBatch(ctx, queued)
	for range batch {
		var id string
		scanErr := results.QueryRow().Scan(&id)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			// Conflict with an existing external_id; the row was dropped.
			continue
		}
		if scanErr != nil {
			_ = results.Close()
			err = Error.Wrap(scanErr)
			return nil, err
		}
		inserted = append(inserted, id)
	}
	if closeErr := results.Close(); closeErr != nil {
		err = Error.Wrap(closeErr)
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, Error.Wrap(err)
	}
	return inserted, nil
}

func (db *photosDB) Query(ctx context.Context, query photos.PhotoQuery) (_ *photos.PhotoPage, err error) {
	defer mon.Task()(&ctx)(&err)

	where, args := buildFilter(query)

	total, err := db.count(ctx, where, args)
	if err != nil {
		return nil, err
	}

	page := &photos.PhotoPage{
		Photos:  []photos.PhotoInfo{},
		Page:    query.Page,
		PerPage: query.PerPage,
	}
	page.TotalCount = total
	if query.PerPage > 0 {
		page.TotalPages = int((total + int64(query.PerPage) - 1) / int64(query.PerPage))
	}
	if total == 0 {
		return page, nil
	}

	args = append(args, query.PerPage, query.Offset())
	sql := fmt.Sprintf(`SELECT %s %s %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		photoColumns, photoJoins, where, orderClause(query.Sort), len(args)-1, len(args))

	rows, err := db.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		info, err := scanPhotoInfo(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		page.Photos = append(page.Photos, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return page, nil
}

func (db *photosDB) Count(ctx context.Context, query photos.PhotoQuery) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	where, args := buildFilter(query)
	return db.count(ctx, where, args)
}

func (db *photosDB) count(ctx context.Context, where string, args []interface{}) (int64, error) {
	var total int64
	err := db.db.pool.QueryRow(ctx,
		`SELECT count(*) `+photoJoins+` `+where, args...).Scan(&total)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return total, nil
}

func (db *photosDB) MaxSol(ctx context.Context, roverID int64) (_ int, _ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	var max *int
	err = db.db.pool.QueryRow(ctx,
		`SELECT max(sol) FROM photos WHERE rover_id = $1`, roverID).Scan(&max)
	if err != nil {
		return 0, false, Error.Wrap(err)
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

func (db *photosDB) Manifest(ctx context.Context, roverID int64) (_ []photos.ManifestEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.pool.Query(ctx, `
		SELECT p.sol, p.earth_date, count(*),
			array_agg(DISTINCT c.short_name ORDER BY c.short_name)
		FROM photos p
		JOIN cameras c ON c.id = p.camera_id
		WHERE p.rover_id = $1
		GROUP BY p.sol, p.earth_date
		ORDER BY p.sol
	`, roverID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var entries []photos.ManifestEntry
	for rows.Next() {
		var entry photos.ManifestEntry
		err := rows.Scan(&entry.Sol, &entry.EarthDate, &entry.Count, &entry.Cameras)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		entries = append(entries, entry)
	}
	return entries, Error.Wrap(rows.Err())
}

// buildFilter renders a PhotoQuery into a WHERE clause with positional
// arguments. Range bounds are half-open: min inclusive, max exclusive.
func buildFilter(query photos.PhotoQuery) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(format string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if query.RoverID != 0 {
		add(`p.rover_id = $%d`, query.RoverID)
	}
	if len(query.RoverIDs) > 0 {
		add(`p.rover_id = ANY($%d)`, query.RoverIDs)
	}
	if query.Sol != nil {
		add(`p.sol = $%d`, *query.Sol)
	}
	if query.EarthDate != nil {
		add(`p.earth_date = $%d`, *query.EarthDate)
	}
	if query.CameraID != 0 {
		add(`p.camera_id = $%d`, query.CameraID)
	}
	if len(query.CameraShortNames) > 0 {
		lowered := make([]string, 0, len(query.CameraShortNames))
		for _, name := range query.CameraShortNames {
			lowered = append(lowered, strings.ToLower(name))
		}
		add(`lower(c.short_name) = ANY($%d)`, lowered)
	}
	if query.SolMin != nil {
		add(`p.sol >= $%d`, *query.SolMin)
	}
	if query.SolMax != nil {
		add(`p.sol < $%d`, *query.SolMax)
	}
	if query.DateMin != nil {
		add(`p.earth_date >= $%d`, *query.DateMin)
	}
	if query.DateMax != nil {
		add(`p.earth_date < $%d`, *query.DateMax)
	}
	if query.ExternalIDSubstr != "" {
		add(`p.external_id ILIKE $%d`, `%`+escapeLike(query.ExternalIDSubstr)+`%`)
	}
	if query.Site != nil {
		add(`p.site = $%d`, *query.Site)
	}
	if query.Drive != nil {
		add(`p.drive = $%d`, *query.Drive)
	}
	if query.SampleType != "" {
		add(`lower(p.sample_type) = lower($%d)`, query.SampleType)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(sort photos.Sort) string {
	switch sort {
	case photos.SortIDDesc:
		return "p.id DESC"
	case photos.SortSol:
		return "p.sol ASC, p.id ASC"
	case photos.SortSolDesc:
		return "p.sol DESC, p.id ASC"
	case photos.SortEarthDate:
		return "p.earth_date ASC, p.id ASC"
	case photos.SortEarthDateDesc:
		return "p.earth_date DESC, p.id ASC"
	case photos.SortCameraThenID:
		return "p.camera_id ASC, p.id ASC"
	default:
		return "p.id ASC"
	}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// nullTime maps the zero time to NULL so absent capture times do not
// round-trip as year 1.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanPhotoInfo(row pgx.Row) (*photos.PhotoInfo, error) {
	var info photos.PhotoInfo
	var raw []byte
	var takenUTC *time.Time
	err := row.Scan(
		&info.ID, &info.ExternalID, &info.RoverID, &info.CameraID,
		&info.Sol, &info.EarthDate, &takenUTC, &info.MarsLocalTime, &info.ReceivedUTC,
		&info.ImageThumbnail, &info.ImageSmall, &info.ImageMedium, &info.ImageFull,
		&info.Width, &info.Height, &info.SampleType,
		&info.Site, &info.Drive, &info.XYZ,
		&info.MastAzimuth, &info.MastElevation,
		&info.FilterName, &info.Title, &info.Caption, &info.Credit,
		&raw, &info.CreatedAt, &info.UpdatedAt,
		&info.CameraShortName, &info.CameraFullName, &info.RoverName,
	)
	if err != nil {
		return nil, err
	}
	if takenUTC != nil {
		info.TakenUTC = *takenUTC
	}
	info.Raw = raw
	return &info, nil
}

func scanIDSet(rows pgx.Rows) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		set[id] = struct{}{}
	}
	return set, Error.Wrap(rows.Err())
}
