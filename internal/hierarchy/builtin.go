package hierarchy

// builtin maps common JDK classes to their superclass. Interfaces are not
// listed; bundle classes implementing them are still assignable to them
// through their own declarations.
var builtin = map[string]string{
	Object:                    "",
	"java/lang/String":        Object,
	"java/lang/Number":        Object,
	"java/lang/Integer":       "java/lang/Number",
	"java/lang/Long":          "java/lang/Number",
	"java/lang/Float":         "java/lang/Number",
	"java/lang/Double":        "java/lang/Number",
	"java/lang/Short":         "java/lang/Number",
	"java/lang/Byte":          "java/lang/Number",
	"java/lang/Character":     Object,
	"java/lang/Boolean":       Object,
	"java/lang/Enum":          Object,
	"java/lang/Class":         Object,
	"java/lang/StringBuilder": Object,
	"java/lang/Thread":        Object,

	"java/lang/Throwable": Object,
	"java/lang/Exception": "java/lang/Throwable",
	"java/lang/Error":     "java/lang/Throwable",

	"java/lang/RuntimeException":                "java/lang/Exception",
	"java/lang/ArithmeticException":             "java/lang/RuntimeException",
	"java/lang/ArrayStoreException":             "java/lang/RuntimeException",
	"java/lang/ClassCastException":              "java/lang/RuntimeException",
	"java/lang/IllegalArgumentException":        "java/lang/RuntimeException",
	"java/lang/NumberFormatException":           "java/lang/IllegalArgumentException",
	"java/lang/IllegalStateException":           "java/lang/RuntimeException",
	"java/lang/IndexOutOfBoundsException":       "java/lang/RuntimeException",
	"java/lang/ArrayIndexOutOfBoundsException":  "java/lang/IndexOutOfBoundsException",
	"java/lang/StringIndexOutOfBoundsException": "java/lang/IndexOutOfBoundsException",
	"java/lang/NegativeArraySizeException":      "java/lang/RuntimeException",
	"java/lang/NullPointerException":            "java/lang/RuntimeException",
	"java/lang/UnsupportedOperationException":   "java/lang/RuntimeException",
	"java/lang/SecurityException":               "java/lang/RuntimeException",
	"java/lang/IllegalMonitorStateException":    "java/lang/RuntimeException",
	"java/util/NoSuchElementException":          "java/lang/RuntimeException",
	"java/util/ConcurrentModificationException": "java/lang/RuntimeException",

	"java/lang/ReflectiveOperationException":      "java/lang/Exception",
	"java/lang/ClassNotFoundException":            "java/lang/ReflectiveOperationException",
	"java/lang/NoSuchMethodException":             "java/lang/ReflectiveOperationException",
	"java/lang/NoSuchFieldException":              "java/lang/ReflectiveOperationException",
	"java/lang/IllegalAccessException":            "java/lang/ReflectiveOperationException",
	"java/lang/InstantiationException":            "java/lang/ReflectiveOperationException",
	"java/lang/reflect/InvocationTargetException": "java/lang/ReflectiveOperationException",
	"java/lang/CloneNotSupportedException":        "java/lang/Exception",
	"java/lang/InterruptedException":              "java/lang/Exception",

	"java/io/IOException":                  "java/lang/Exception",
	"java/io/FileNotFoundException":        "java/io/IOException",
	"java/io/EOFException":                 "java/io/IOException",
	"java/io/UnsupportedEncodingException": "java/io/IOException",

	"java/lang/LinkageError":                 "java/lang/Error",
	"java/lang/NoClassDefFoundError":         "java/lang/LinkageError",
	"java/lang/ClassFormatError":             "java/lang/LinkageError",
	"java/lang/VerifyError":                  "java/lang/LinkageError",
	"java/lang/ExceptionInInitializerError":  "java/lang/LinkageError",
	"java/lang/IncompatibleClassChangeError": "java/lang/LinkageError",
	"java/lang/AbstractMethodError":          "java/lang/IncompatibleClassChangeError",
	"java/lang/NoSuchFieldError":             "java/lang/IncompatibleClassChangeError",
	"java/lang/NoSuchMethodError":            "java/lang/IncompatibleClassChangeError",
	"java/lang/IllegalAccessError":           "java/lang/IncompatibleClassChangeError",

	"java/lang/VirtualMachineError": "java/lang/Error",
	"java/lang/OutOfMemoryError":    "java/lang/VirtualMachineError",
	"java/lang/StackOverflowError":  "java/lang/VirtualMachineError",
	"java/lang/InternalError":       "java/lang/VirtualMachineError",
	"java/lang/AssertionError":      "java/lang/Error",
}
