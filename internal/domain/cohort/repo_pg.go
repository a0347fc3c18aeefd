package cohort

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

type sqlStore struct{ db *sql.DB }

// NewStore returns a Store over db. In production db is the pgx pool seen
// through database/sql.
func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) Open(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open export connection: %w: %w", ErrStoreUnavailable, err)
	}
	return &sqlSession{conn: conn}, nil
}

const ageBucketSQL = `
	SELECT
		CASE
			WHEN age < 18 THEN '0-17'
			WHEN age < 30 THEN '18-29'
			WHEN age < 40 THEN '30-39'
			WHEN age < 50 THEN '40-49'
			WHEN age < 60 THEN '50-59'
			WHEN age < 70 THEN '60-69'
			WHEN age < 80 THEN '70-79'
			ELSE '80+'
		END AS age_group,
		COUNT(*)
	FROM patients_statistical
	WHERE age IS NOT NULL
	GROUP BY age_group
	ORDER BY age_group`

func (s *sqlStore) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{Sex: map[string]int{"M": 0, "F": 0}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients_sensitive`).Scan(&sum.TotalPatients); err != nil {
		return nil, storeError("count patients", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sex, COUNT(*) FROM patients_statistical
		WHERE sex IN ('M', 'F')
		GROUP BY sex`)
	if err != nil {
		return nil, storeError("count by sex", err)
	}
	for rows.Next() {
		var sex string
		var n int
		if err := rows.Scan(&sex, &n); err != nil {
			rows.Close()
			return nil, storeError("scan sex count", err)
		}
		sum.Sex[sex] = n
	}
	if err := closeRows(rows); err != nil {
		return nil, storeError("count by sex", err)
	}

	rows, err = s.db.QueryContext(ctx, ageBucketSQL)
	if err != nil {
		return nil, storeError("age distribution", err)
	}
	for rows.Next() {
		var b AgeBucket
		if err := rows.Scan(&b.Group, &b.Count); err != nil {
			rows.Close()
			return nil, storeError("scan age bucket", err)
		}
		sum.AgeDistribution = append(sum.AgeDistribution, b)
	}
	if err := closeRows(rows); err != nil {
		return nil, storeError("age distribution", err)
	}
	return sum, nil
}

type sqlSession struct{ conn *sql.Conn }

func (s *sqlSession) Close() error { return s.conn.Close() }

func (s *sqlSession) Vocabulary(ctx context.Context, c Category) ([]string, error) {
	q, ok := vocabularySQL[c]
	if !ok {
		return nil, fmt.Errorf("resolve vocabulary: unknown category %q", c)
	}
	rows, err := s.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, storeError("resolve vocabulary "+string(c), err)
	}
	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, storeError("scan vocabulary "+string(c), err)
		}
		seen[id] = struct{}{}
	}
	if err := closeRows(rows); err != nil {
		return nil, storeError("resolve vocabulary "+string(c), err)
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func cohortSQL(q CohortQuery) string {
	var cols []string
	if q.Sensitive {
		cols = []string{
			"ps.patient_id", "ps.patient_name", "ps.mbo", "pst.sex", "ps.date_of_birth",
			"ps.date_of_sample_collection", "pst.eye", "pst.person_hash", "pst.age",
		}
	} else {
		cols = []string{"ps.patient_id", "pst.person_hash", "pst.sex", "pst.eye", "pst.age"}
	}
	if q.Conditions {
		for _, c := range ScalarColumns {
			cols = append(cols, "oc."+c)
		}
	}

	order := q.Predicate.OrderBy
	if order == "" {
		order = defaultOrder
	}
	return `SELECT ` + strings.Join(cols, ", ") + `
		FROM patients_sensitive ps
		JOIN patients_statistical pst ON ps.patient_id = pst.patient_id
		LEFT JOIN ocular_conditions oc ON ps.patient_id = oc.patient_id
		WHERE 1=1` + q.Predicate.Where + `
		ORDER BY ` + order
}

func (s *sqlSession) Cohort(ctx context.Context, q CohortQuery) ([]*Patient, error) {
	rows, err := s.conn.QueryContext(ctx, cohortSQL(q), q.Predicate.Args...)
	if err != nil {
		return nil, storeError("select cohort", err)
	}

	var out []*Patient
	for rows.Next() {
		p := &Patient{}
		var dest []interface{}
		if q.Sensitive {
			dest = []interface{}{&p.ID, &p.Name, &p.MBO, &p.Sex, &p.DateOfBirth,
				&p.CollectedOn, &p.Eye, &p.PersonHash, &p.Age}
		} else {
			dest = []interface{}{&p.ID, &p.PersonHash, &p.Sex, &p.Eye, &p.Age}
		}
		if q.Conditions {
			p.Scalars = make([]sql.NullString, len(ScalarColumns))
			for i := range p.Scalars {
				dest = append(dest, &p.Scalars[i])
			}
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, storeError("scan cohort", err)
		}
		out = append(out, p)
	}
	if err := closeRows(rows); err != nil {
		return nil, storeError("select cohort", err)
	}
	return out, nil
}

func (s *sqlSession) Associations(ctx context.Context, r Relation, ids []int64) (Associations, error) {
	out := make(Associations)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.conn.QueryContext(ctx, r.prefetchSQL(), pq.Array(ids))
	if err != nil {
		return nil, storeError("prefetch "+r.String(), err)
	}
	for rows.Next() {
		var pid int64
		var a Association
		if err := rows.Scan(&pid, &a.Code, &a.Eye, &a.Days); err != nil {
			rows.Close()
			return nil, storeError("scan "+r.String(), err)
		}
		out[pid] = append(out[pid], a)
	}
	if err := closeRows(rows); err != nil {
		return nil, storeError("prefetch "+r.String(), err)
	}
	return out, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
