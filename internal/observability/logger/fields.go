package logger

import (
	"time"

	"github.com/dropDatabas3/littlejohn/internal/util"
	"go.uber.org/zap"
)

// Campos estándar del proyecto. Mantener este set chico: solo lo que aparece
// en más de un componente.

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Email se loguea siempre enmascarado: las direcciones completas no van a
// los logs.
func Email(v string) zap.Field { return zap.String("email", util.MaskEmail(v)) }

func Collection(v string) zap.Field { return zap.String("collection", v) }

func DocID(v string) zap.Field { return zap.String("doc_id", v) }

func BlobPath(v string) zap.Field { return zap.String("blob_path", v) }

func State(v string) zap.Field { return zap.String("state", v) }

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func Err(err error) zap.Field { return zap.Error(err) }
