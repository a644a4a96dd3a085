// Пакет treepath - единственное место, где собираются и разбираются
// материализованные пути дерева подразделений. Никто за пределами пакета
// не должен склеивать path вручную.
package treepath

import (
	"fmt"
	"strings"
)

// Separator - разделитель сегментов пути. Путь корня: "/" + код.
const Separator = "/"

// Build строит путь узла из пути родителя и собственного кода.
// Для корня parentPath передается пустой строкой.
func Build(parentPath, code string) string {
	return parentPath + Separator + code
}

// Split разбирает путь на коды предков (от корня) включая собственный код.
// Пустой путь дает пустой срез.
func Split(path string) []string {
	trimmed := strings.Trim(path, Separator)
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, Separator)
}

// Level возвращает глубину узла по его пути: корень = 0.
func Level(path string) int {
	segments := Split(path)
	if len(segments) == 0 {
		return 0
	}
	return len(segments) - 1
}

// IsAncestorPath сообщает, является ли узел с путем ancestor предком узла
// с путем descendant (или тем же самым узлом). Проверка строковая, O(длины
// пути): она точна, пока инвариант консистентности путей соблюдается.
func IsAncestorPath(ancestor, descendant string) bool {
	if ancestor == "" || descendant == "" {
		return false
	}
	return descendant == ancestor || strings.HasPrefix(descendant, ancestor+Separator)
}

// ReplacePrefix заменяет старый префикс пути на новый. Используется при
// каскадном переносе поддерева. Ошибка означает, что узел не принадлежит
// поддереву oldPrefix и вызывающий код перепутал диапазон.
func ReplacePrefix(path, oldPrefix, newPrefix string) (string, error) {
	if !IsAncestorPath(oldPrefix, path) {
		return "", fmt.Errorf("путь %q не входит в поддерево %q", path, oldPrefix)
	}
	return newPrefix + path[len(oldPrefix):], nil
}

// ParentPath возвращает путь родителя; для корня - пустую строку.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, Separator)
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

// LastCode возвращает последний сегмент пути (код самого узла).
func LastCode(path string) string {
	segments := Split(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
