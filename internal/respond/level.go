package respond

import (
	"fmt"
	"strings"
)

type Level string

const (
	LevelBasic    Level = "basico"
	LevelMedium   Level = "medio"
	LevelAdvanced Level = "avanzado"
)

var Levels = []Level{LevelBasic, LevelMedium, LevelAdvanced}

func ParseLevel(raw string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(raw)))
	switch level {
	case LevelBasic, LevelMedium, LevelAdvanced:
		return level, nil
	case "básico":
		return LevelBasic, nil
	default:
		return "", fmt.Errorf("invalid technical level %q: use basico, medio or avanzado", raw)
	}
}

func (l Level) audience() string {
	switch l {
	case LevelBasic:
		return "El usuario no tiene conocimientos técnicos. Explica el resultado con palabras sencillas, " +
			"sin mencionar SQL, tablas ni columnas."
	case LevelAdvanced:
		return "El usuario es técnico. Puedes hablar de la consulta SQL, las columnas devueltas " +
			"y posibles mejoras de la consulta."
	default:
		return "El usuario tiene conocimientos técnicos moderados. Resume el resultado con claridad; " +
			"puedes mencionar tablas y columnas, evitando jerga innecesaria."
	}
}
