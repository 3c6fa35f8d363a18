package media

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/video-gateway/internal/platform/dbctx"
)

var ErrNotFound = errors.New("record not found")

func conn(db *gorm.DB, dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = db
	}
	return transaction.WithContext(dbc.Ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// likePrefix escapes LIKE wildcards in a literal key prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
