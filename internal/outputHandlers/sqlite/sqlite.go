package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/AlfredBerg/scrapecrawl/internal/crawl"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type SqliteOutput struct {
	Database string
	Logger   *zap.Logger

	db       *sql.DB
	treeChan chan tree
	wg       sync.WaitGroup
	errs     []error

	dbLock sync.Mutex
}

// tree is one crawl with its nodes in parent first order.
type tree struct {
	CrawlID string
	Seeds   string
	Nodes   []node
}

type node struct {
	ID       string
	ParentID sql.NullString
	Depth    int
	Position int
	URL      string
	Content  string
	Links    string
	Error    string
}

const schema = `
CREATE TABLE IF NOT EXISTS crawls (id text not null primary key, seeds text);
CREATE TABLE IF NOT EXISTS nodes (
	id text not null primary key,
	crawl_id text not null references crawls(id),
	parent_id text references nodes(id),
	depth integer not null,
	position integer not null,
	url text,
	content text,
	links text,
	error text
);`

func (o *SqliteOutput) Init() error {
	if o.Database == "" {
		return errors.New("sqlite database file not set")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", o.Database)
	if err != nil {
		return err
	}
	o.db = db

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	o.treeChan = make(chan tree, 4)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for t := range o.treeChan {
			o.dbLock.Lock()
			err := o.insertTree(t)
			if err != nil {
				o.errs = append(o.errs, err)
			}
			o.dbLock.Unlock()
			if err != nil {
				o.Logger.Warn("failed to insert crawl", zap.String("crawl_id", t.CrawlID), zap.Error(err))
			}
		}
	}()
	return nil
}

// insertTree writes a crawl and all of its nodes in one transaction, a failed
// insert leaves nothing of the crawl behind.
func (o *SqliteOutput) insertTree(t tree) error {
	tx, err := o.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT into crawls(id, seeds) values(?, ?);", t.CrawlID, t.Seeds); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to insert crawl %s: %w", t.CrawlID, err)
	}
	stmt, err := tx.Prepare("INSERT into nodes(id, crawl_id, parent_id, depth, position, url, content, links, error) values(?, ?, ?, ?, ?, ?, ?, ?, ?);")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, n := range t.Nodes {
		if _, err := stmt.Exec(n.ID, t.CrawlID, n.ParentID, n.Depth, n.Position, n.URL, n.Content, n.Links, n.Error); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert node %s: %w", n.URL, err)
		}
	}
	return tx.Commit()
}

// Cleanup waits for every queued node to be written and closes the database.
// It returns the insert errors seen by the writer.
func (o *SqliteOutput) Cleanup() error {
	close(o.treeChan)
	o.wg.Wait()
	o.dbLock.Lock()
	err := errors.Join(o.errs...)
	o.dbLock.Unlock()
	return errors.Join(err, o.db.Close())
}

// HandleTree queues a finished result tree under crawlID. The tree is encoded
// before anything is queued and written in a single transaction, so the
// database holds either the whole crawl or none of it. Write errors are
// returned by Cleanup. It is safe to use from multiple goroutines.
func (o *SqliteOutput) HandleTree(crawlID uuid.UUID, root *crawl.Node) error {
	seeds, err := json.Marshal(root.Links)
	if err != nil {
		return err
	}
	t := tree{CrawlID: crawlID.String(), Seeds: string(seeds)}

	ids := map[*crawl.Node]string{}
	positions := map[*crawl.Node]int{}
	var walkErr error
	root.Walk(func(n, parent *crawl.Node, depth int) {
		if walkErr != nil {
			return
		}
		for i, c := range n.Children {
			positions[c] = i
		}
		ids[n] = uuid.NewString()

		var parentID sql.NullString
		if parent != nil {
			parentID = sql.NullString{String: ids[parent], Valid: true}
		}
		content, err := json.Marshal(n.Content)
		if err != nil {
			walkErr = fmt.Errorf("failed to encode content of %s: %w", n.URL, err)
			return
		}
		links, err := json.Marshal(n.Links)
		if err != nil {
			walkErr = err
			return
		}
		t.Nodes = append(t.Nodes, node{
			ID:       ids[n],
			ParentID: parentID,
			Depth:    depth,
			Position: positions[n],
			URL:      n.URL,
			Content:  string(content),
			Links:    string(links),
			Error:    n.Error,
		})
	})
	if walkErr != nil {
		return walkErr
	}

	o.treeChan <- t
	return nil
}
